package farmwatch

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = logrus.PanicLevel
	return logger
}

func TestNotifySensorUpdate(t *testing.T) {
	received := make(chan NotifyEvent, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/sensor/notify" {
			t.Errorf("notification posted to %s", r.URL.Path)
		}

		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var event NotifyEvent
		if err := json.Unmarshal(body, &event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		received <- event
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, time.Second, testLogger())

	recorded := time.Date(2024, 5, 17, 10, 5, 0, 0, time.UTC)
	n.NotifySensorUpdate(1, 7, 23.5, recorded)

	select {
	case event := <-received:
		if event.Event != EventSensorUpdate {
			t.Errorf("event = %s, want %s", event.Event, EventSensorUpdate)
		}
		if event.HouseId != 1 || event.DeviceId != 7 || event.Value != 23.5 {
			t.Errorf("unexpected payload: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestNotifyPublishAlert(t *testing.T) {
	received := make(chan NotifyEvent, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)

		var event NotifyEvent
		json.Unmarshal(body, &event)

		received <- event
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, time.Second, testLogger())

	alert := Alert{
		Id:        3,
		HouseId:   1,
		DeviceId:  7,
		AlertType: AlertTypeError,
		Message:   "too hot",
		CreatedAt: time.Now().UTC(),
	}

	if err := n.PublishAlert(alert); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-received:
		if event.Event != EventAlertNew {
			t.Errorf("event = %s, want %s", event.Event, EventAlertNew)
		}
		if event.Alert == nil || event.Alert.Message != "too hot" {
			t.Errorf("alert payload missing: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert notification never arrived")
	}
}

func TestNotifyTimeoutDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	n := NewNotifier(server.URL, 50*time.Millisecond, testLogger())

	started := time.Now()
	n.NotifySensorUpdate(1, 7, 23.5, time.Now())
	elapsed := time.Since(started)

	if elapsed > time.Second {
		t.Fatalf("Notify blocked for %s on a stalled dashboard", elapsed)
	}
}

func TestNotifySwallowsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, time.Second, testLogger())

	//Must not panic or surface anything to the caller
	n.NotifySensorUpdate(1, 7, 23.5, time.Now())

	if err := n.PublishAlert(Alert{HouseId: 1, DeviceId: 7}); err != nil {
		t.Fatalf("PublishAlert surfaced a notifier failure: %v", err)
	}
}
