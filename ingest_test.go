package farmwatch

import (
	"errors"
	"testing"
	"time"
)

type fakeIngestStore struct {
	inserted  []Reading
	insertErr error
	houseId   uint64
	houseErr  error
}

func (f *fakeIngestStore) ReadingInsert(r *Reading) error {
	if f.insertErr != nil {
		return f.insertErr
	}

	f.inserted = append(f.inserted, *r)
	return nil
}

func (f *fakeIngestStore) HouseId(deviceId uint64) (uint64, error) {
	if f.houseErr != nil {
		return 0, f.houseErr
	}

	return f.houseId, nil
}

type fakeStateStore struct {
	applied []ActuatorState
}

func (f *fakeStateStore) ApplyStates(states []ActuatorState) error {
	f.applied = append(f.applied, states...)
	return nil
}

type fakeModeStore struct {
	houseId uint64
	mode    string
}

func (f *fakeModeStore) SetControlMode(houseId uint64, mode string) error {
	f.houseId = houseId
	f.mode = mode
	return nil
}

type fakeTaskQueue struct {
	created []interface{}
}

func (f *fakeTaskQueue) Create(cmd interface{}) error {
	f.created = append(f.created, cmd)
	return nil
}

func (f *fakeTaskQueue) evaluations() []EvaluateReading {
	var cmds []EvaluateReading
	for _, c := range f.created {
		if cmd, ok := c.(EvaluateReading); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func (f *fakeTaskQueue) notifications() []NotifySensor {
	var cmds []NotifySensor
	for _, c := range f.created {
		if cmd, ok := c.(NotifySensor); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

type fakeEventSink struct {
	published []interface{}
}

func (f *fakeEventSink) Publish(event interface{}) error {
	f.published = append(f.published, event)
	return nil
}

type ingestFixture struct {
	sensors   *fakeIngestStore
	actuators *fakeStateStore
	houses    *fakeModeStore
	tasks     *fakeTaskQueue
	events    *fakeEventSink
	ingestor  *Ingestor
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		sensors:   &fakeIngestStore{houseId: 1},
		actuators: &fakeStateStore{},
		houses:    &fakeModeStore{},
		tasks:     &fakeTaskQueue{},
		events:    &fakeEventSink{},
	}

	f.ingestor = &Ingestor{
		sensors:   f.sensors,
		actuators: f.actuators,
		houses:    f.houses,
		tasks:     f.tasks,
		events:    f.events,
		logger:    testLogger(),
	}

	return f
}

func TestIngestSchedulesEvaluationAndNotification(t *testing.T) {
	f := newIngestFixture()

	reading := Reading{DeviceId: 7, Value: 45, RecordedAt: time.Now().UTC()}

	if err := f.ingestor.Ingest(&reading, nil, nil); err != nil {
		t.Fatal(err)
	}

	if len(f.sensors.inserted) != 1 {
		t.Fatalf("inserted %d readings, want 1", len(f.sensors.inserted))
	}

	evals := f.tasks.evaluations()
	if len(evals) != 1 || evals[0].DeviceId != 7 || evals[0].Value != 45 {
		t.Fatalf("evaluation tasks = %+v, want one for device 7 value 45", evals)
	}

	notifies := f.tasks.notifications()
	if len(notifies) != 1 || notifies[0].HouseId != 1 {
		t.Fatalf("notification tasks = %+v, want one for house 1", notifies)
	}

	if len(f.events.published) != 1 {
		t.Fatalf("published %d events, want 1", len(f.events.published))
	}
}

func TestIngestEvaluatesWhenHouseUnknown(t *testing.T) {
	f := newIngestFixture()
	f.sensors.houseErr = errors.New("no such device")

	reading := Reading{DeviceId: 7, Value: 45}

	//Persistence succeeded, so the gateway still gets its success
	if err := f.ingestor.Ingest(&reading, nil, nil); err != nil {
		t.Fatal(err)
	}

	//Evaluation needs only the device, it must not be skipped
	if len(f.tasks.evaluations()) != 1 {
		t.Fatalf("evaluation tasks = %d, want 1 despite unresolved house", len(f.tasks.evaluations()))
	}

	//The dashboard push is house-scoped and is the only thing dropped
	if len(f.tasks.notifications()) != 0 {
		t.Fatalf("notification tasks = %d, want 0 for unresolved house", len(f.tasks.notifications()))
	}

	if len(f.events.published) != 0 {
		t.Fatalf("published %d events, want 0 for unresolved house", len(f.events.published))
	}
}

func TestIngestPropagatesStoreFailure(t *testing.T) {
	f := newIngestFixture()
	f.sensors.insertErr = errors.New("store unavailable")

	reading := Reading{DeviceId: 7, Value: 45}

	if err := f.ingestor.Ingest(&reading, nil, nil); err == nil {
		t.Fatal("expected the persistence error to surface")
	}

	if len(f.tasks.created) != 0 {
		t.Fatalf("scheduled %d tasks for an unsaved reading, want 0", len(f.tasks.created))
	}
}

func TestIngestAppliesRawStatesAndMode(t *testing.T) {
	f := newIngestFixture()

	mode := "MANUAL"
	states := []ActuatorState{{ActuatorId: 3, IsOn: true}}

	reading := Reading{DeviceId: 7, Value: 25}

	if err := f.ingestor.Ingest(&reading, states, &mode); err != nil {
		t.Fatal(err)
	}

	if len(f.actuators.applied) != 1 || f.actuators.applied[0].ActuatorId != 3 {
		t.Fatalf("applied states = %+v, want actuator 3", f.actuators.applied)
	}

	if f.houses.houseId != 1 || f.houses.mode != CommandManual {
		t.Fatalf("control mode = %q on house %d, want manual on house 1", f.houses.mode, f.houses.houseId)
	}
}

func TestIngestIgnoresInvalidMode(t *testing.T) {
	f := newIngestFixture()

	mode := "turbo"
	reading := Reading{DeviceId: 7, Value: 25}

	if err := f.ingestor.Ingest(&reading, nil, &mode); err != nil {
		t.Fatal(err)
	}

	if f.houses.mode != "" {
		t.Fatalf("control mode set to %q from an invalid value", f.houses.mode)
	}
}

func TestIngestIgnoresOnOffAsMode(t *testing.T) {
	f := newIngestFixture()

	//on/off are actuator commands, not house modes
	mode := "on"
	reading := Reading{DeviceId: 7, Value: 25}

	if err := f.ingestor.Ingest(&reading, nil, &mode); err != nil {
		t.Fatal(err)
	}

	if f.houses.mode != "" {
		t.Fatalf("control mode set to %q from an on/off command", f.houses.mode)
	}
}
