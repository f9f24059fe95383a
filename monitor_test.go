package farmwatch

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeSensorReader struct {
	device  *MonitoredDevice
	reading *Reading
	failing map[uint64]bool
}

func (f *fakeSensorReader) MonitoredDevice(deviceId uint64) (*MonitoredDevice, error) {
	if f.failing[deviceId] {
		return nil, errors.New("device lookup failed")
	}

	return f.device, nil
}

func (f *fakeSensorReader) LatestReading(deviceId uint64) (*Reading, error) {
	return f.reading, nil
}

type fakeAlertLedger struct {
	alerts []Alert
}

func (f *fakeAlertLedger) RecentExists(deviceId uint64, alertType string, since time.Time) (bool, error) {
	for _, a := range f.alerts {
		if a.DeviceId == deviceId && a.AlertType == alertType && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeAlertLedger) Insert(a *Alert) error {
	a.Id = uint64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, *a)
	return nil
}

type captureAlertPublisher struct {
	published []Alert
}

func (c *captureAlertPublisher) PublishAlert(a Alert) error {
	c.published = append(c.published, a)
	return nil
}

func floatPtr(v float64) *float64 {
	return &v
}

func testDevice() *MonitoredDevice {
	return &MonitoredDevice{
		DeviceId: 7,
		HouseId:  1,
		Name:     "Greenhouse temperature",
		TypeName: "temperature",
		Unit:     "C",
		MinValue: floatPtr(10),
		MaxValue: floatPtr(40),
	}
}

func testMonitor(sensors SensorReader, alerts AlertLedger, at time.Time) *Monitor {
	logger := logrus.New()
	logger.Level = logrus.PanicLevel

	m := NewMonitor(sensors, alerts, logger)
	m.now = func() time.Time { return at }

	return m
}

func TestEvaluate(t *testing.T) {
	min := floatPtr(10)
	max := floatPtr(40)

	tests := []struct {
		value    float64
		min, max *float64
		want     AlertKind
	}{
		{25, min, max, AlertNone},
		{10, min, max, AlertNone},
		{40, min, max, AlertNone},
		{9.9, min, max, AlertBelowMin},
		{40.1, min, max, AlertAboveMax},
		{-5, min, max, AlertBelowMin},
		{100, nil, max, AlertNone},
		{100, min, nil, AlertNone},
		{100, nil, nil, AlertNone},
	}

	for _, tc := range tests {
		got := Evaluate(tc.value, tc.min, tc.max)
		if got != tc.want {
			t.Errorf("Evaluate(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestEvaluateAboveMaxWinsDegenerateBand(t *testing.T) {
	//min > max means every value violates one of the bounds
	got := Evaluate(50, floatPtr(60), floatPtr(40))
	if got != AlertAboveMax {
		t.Errorf("Evaluate on degenerate band = %s, want %s", got, AlertAboveMax)
	}
}

func TestSeverity(t *testing.T) {
	if AlertBelowMin.Severity() != AlertTypeWarning {
		t.Errorf("below-min severity = %s, want %s", AlertBelowMin.Severity(), AlertTypeWarning)
	}
	if AlertAboveMax.Severity() != AlertTypeError {
		t.Errorf("above-max severity = %s, want %s", AlertAboveMax.Severity(), AlertTypeError)
	}
}

func TestBucketStart(t *testing.T) {
	day := func(hour, minute int) time.Time {
		return time.Date(2024, 5, 17, hour, minute, 42, 123, time.UTC)
	}

	tests := []struct {
		at   time.Time
		want time.Time
	}{
		{day(10, 5), time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)},
		{day(10, 28), time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)},
		{day(10, 30), time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)},
		{day(10, 31), time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)},
		{day(10, 59), time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)},
		{day(0, 0), time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		got := BucketStart(tc.at)
		if !got.Equal(tc.want) {
			t.Errorf("BucketStart(%s) = %s, want %s", tc.at, got, tc.want)
		}
	}
}

func TestBucketStartAgreesWithinWindow(t *testing.T) {
	first := time.Date(2024, 5, 17, 10, 31, 0, 0, time.UTC)
	second := time.Date(2024, 5, 17, 10, 59, 59, 0, time.UTC)

	if !BucketStart(first).Equal(BucketStart(second)) {
		t.Errorf("two callers in the same half-hour disagree: %s vs %s", BucketStart(first), BucketStart(second))
	}
}

func TestCheckReadingCreatesAlert(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}
	publisher := &captureAlertPublisher{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))
	m.SetPublisher(publisher)

	created, err := m.CheckReading(7, 45)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected an alert for a reading above the maximum")
	}

	if len(ledger.alerts) != 1 {
		t.Fatalf("ledger has %d alerts, want 1", len(ledger.alerts))
	}

	alert := ledger.alerts[0]
	if alert.AlertType != AlertTypeError {
		t.Errorf("alert type = %s, want %s", alert.AlertType, AlertTypeError)
	}
	if alert.HouseId != 1 || alert.DeviceId != 7 {
		t.Errorf("alert scoped to house %d device %d, want house 1 device 7", alert.HouseId, alert.DeviceId)
	}
	if !strings.Contains(alert.Message, "45C") || !strings.Contains(alert.Message, "40C") {
		t.Errorf("alert message missing measured or threshold value: %q", alert.Message)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("publisher received %d alerts, want 1", len(publisher.published))
	}
}

func TestCheckReadingBelowMinIsWarning(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	created, err := m.CheckReading(7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected an alert for a reading below the minimum")
	}

	if ledger.alerts[0].AlertType != AlertTypeWarning {
		t.Errorf("alert type = %s, want %s", ledger.alerts[0].AlertType, AlertTypeWarning)
	}
}

func TestCheckReadingInsideBand(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	created, err := m.CheckReading(7, 25)
	if err != nil {
		t.Fatal(err)
	}
	if created || len(ledger.alerts) != 0 {
		t.Fatal("no alert expected for a reading inside the band")
	}
}

func TestCheckReadingDeduplicatesWithinBucket(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		if _, err := m.CheckReading(7, 45); err != nil {
			t.Fatal(err)
		}
	}

	if len(ledger.alerts) != 1 {
		t.Fatalf("ledger has %d alerts after repeated checks in one bucket, want 1", len(ledger.alerts))
	}
}

func TestCheckReadingNewBucketCreatesAgain(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	at := time.Date(2024, 5, 17, 10, 29, 0, 0, time.UTC)

	m := testMonitor(sensors, ledger, at)

	if _, err := m.CheckReading(7, 45); err != nil {
		t.Fatal(err)
	}

	//Cross into the next half-hour bucket
	at = time.Date(2024, 5, 17, 10, 31, 0, 0, time.UTC)
	m.now = func() time.Time { return at }

	created, err := m.CheckReading(7, 45)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected a fresh alert in the next bucket")
	}

	if len(ledger.alerts) != 2 {
		t.Fatalf("ledger has %d alerts, want 2", len(ledger.alerts))
	}
}

func TestCheckReadingDifferentSeveritiesShareBucket(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	if _, err := m.CheckReading(7, 45); err != nil {
		t.Fatal(err)
	}

	//A below-min alert is a different type and is not suppressed
	created, err := m.CheckReading(7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected a warning alert alongside the error alert in the same bucket")
	}
}

func TestCheckDeviceUsesLatestReading(t *testing.T) {
	sensors := &fakeSensorReader{
		device:  testDevice(),
		reading: &Reading{DeviceId: 7, Value: 45},
	}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	created, err := m.CheckDevice(7)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected an alert from the stored reading")
	}
}

func TestCheckDeviceSkipsWithoutReadings(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	created, err := m.CheckDevice(7)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("device without readings must not alert")
	}
}

func TestCheckReadingsEvaluatesEveryRow(t *testing.T) {
	sensors := &fakeSensorReader{device: testDevice()}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	//One violation per severity plus in-band rows; dedup caps repeats
	readings := []Reading{
		{DeviceId: 7, Value: 25},
		{DeviceId: 7, Value: 45},
		{DeviceId: 7, Value: 47},
		{DeviceId: 7, Value: 3},
		{DeviceId: 7, Value: 30},
	}

	alerted := m.CheckReadings(readings)
	if alerted != 2 {
		t.Fatalf("batch raised %d alerts, want 2 (one error, one warning)", alerted)
	}

	if len(ledger.alerts) != 2 {
		t.Fatalf("ledger has %d alerts, want 2", len(ledger.alerts))
	}
}

func TestCheckReadingsIsolatesRowFailures(t *testing.T) {
	sensors := &fakeSensorReader{
		device:  testDevice(),
		failing: map[uint64]bool{8: true},
	}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	readings := []Reading{
		{DeviceId: 8, Value: 45},
		{DeviceId: 7, Value: 45},
	}

	alerted := m.CheckReadings(readings)
	if alerted != 1 {
		t.Fatalf("batch raised %d alerts, want 1 despite a failing row", alerted)
	}
}

func TestCheckReadingMissingThresholdDisablesMonitoring(t *testing.T) {
	device := testDevice()
	device.MinValue = nil
	device.MaxValue = nil

	sensors := &fakeSensorReader{device: device}
	ledger := &fakeAlertLedger{}

	m := testMonitor(sensors, ledger, time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC))

	created, err := m.CheckReading(7, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("device without a threshold must not alert")
	}
}
