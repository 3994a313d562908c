package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/flockweigh/flockweigh-core/internal/device"
	"github.com/flockweigh/flockweigh-core/internal/events"
	"github.com/flockweigh/flockweigh-core/internal/wire"
)

func assertFirmwareReply(t *testing.T, method string, code int, body string, wantCode int, want string) {
	t.Helper()
	if code != wantCode {
		t.Errorf("%s status = %d, want %d", method, code, wantCode)
	}
	if body != want {
		t.Errorf("%s body = %q, want %q", method, body, want)
	}
}

func TestHeartbeat_Replies(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7101", nil)
	env.seed(t, "7102", func(d *device.Device) { d.Active = false; d.PendingReset = true })
	env.seed(t, "7103", func(d *device.Device) { d.CalibrationRunning = true })

	tests := []struct {
		name string
		body string
		want string
	}{
		{"idle", `{"dev":"7101"}`, `@{"dev":"7101","err":0}@`},
		{"numeric serial", `{"dev":7101}`, `@{"dev":"7101","err":0}@`},
		{"unknown device", `{"dev":"9999"}`, `@{"dev":"9999","abo":1,"ste":0,"val":-1}@`},
		{"inactive device", `{"dev":"7102"}`, `@{"dev":"7102","abo":1,"ste":0,"val":-2}@`},
		{"calibrating", `{"dev":"7103"}`, `@{"dev":"7103","cal":1,"sen":2}@`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/device/heartbeat", tt.body)
			assertFirmwareReply(t, tt.name, w.Code, w.Body.String(), http.StatusOK, tt.want)
			if ct := w.Header().Get("Content-Type"); ct != wire.ContentType {
				t.Errorf("Content-Type = %q, want %q", ct, wire.ContentType)
			}
		})
	}

	// The inactive device's reset stays queued.
	d, err := env.registry.FindBySerial(context.Background(), "7102")
	if err != nil {
		t.Fatalf("FindBySerial() error = %v", err)
	}
	if !d.PendingReset {
		t.Error("pending_reset consumed by an inactive device")
	}
}

func TestHeartbeat_Malformed(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{"", "not json", `{"dev":""}`, `{"foo":1}`, `{"dev":true}`} {
		w := env.do(http.MethodPost, "/device/heartbeat", body)
		assertFirmwareReply(t, body, w.Code, w.Body.String(), http.StatusBadRequest, wire.ErrorToken)
	}
}

func TestHeartbeat_ResetDeliveredOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7104", nil)

	w := env.do(http.MethodPost, "/api/v1/devices/7104/reset", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("reset status = %d, want 202", w.Code)
	}

	w = env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7104"}`)
	assertFirmwareReply(t, "first poll", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7104","rst":1}@`)

	w = env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7104"}`)
	assertFirmwareReply(t, "second poll", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7104","err":0}@`)
}

func TestHeartbeat_CalibrationBeforeReset(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7105", func(d *device.Device) { d.PendingReset = true })

	env.do(http.MethodPost, "/api/v1/calibration/7105/weight", `{"weight":10}`)

	w := env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7105"}`)
	assertFirmwareReply(t, "while calibrating", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7105","cal":1,"sen":2}@`)

	env.do(http.MethodPost, "/api/v1/calibration/7105/cancel", "")

	w = env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7105"}`)
	assertFirmwareReply(t, "after cancel", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7105","rst":1}@`)
}

func TestHeartbeat_ConcurrentResetDeliveredOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7106", func(d *device.Device) { d.PendingReset = true })

	const polls = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		resets int
	)
	for range polls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7106"}`)
			if strings.Contains(w.Body.String(), `"rst":1`) {
				mu.Lock()
				resets++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if resets != 1 {
		t.Errorf("reset delivered %d times, want 1", resets)
	}
}

func TestCalibrationReport_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7001", nil)

	w := env.do(http.MethodPost, "/api/v1/calibration/7001/weight", `{"weight":12.5,"step":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit weight status = %d; body: %s", w.Code, w.Body.String())
	}

	exchanges := []struct {
		body     string
		wantCode int
		want     string
	}{
		{`{"dev":"7001","ste":0}`, http.StatusOK, `@{"dev":"7001","ste":1,"val":0,"abo":0}@`},
		{`{"dev":"7001","ste":1}`, http.StatusOK, ``},
		{`{"dev":"7001","ste":2}`, http.StatusOK, `@{"dev":"7001","ste":3,"val":12.5,"abo":0}@`},
		{`{"dev":"7001","ste":3}`, http.StatusOK, ``},
		{`{"dev":"7001","ste":4}`, http.StatusOK, `@{"dev":"7001","ste":4,"val":0,"abo":0}@`},
	}
	for _, ex := range exchanges {
		w := env.do(http.MethodPost, "/device/calibration", ex.body)
		assertFirmwareReply(t, ex.body, w.Code, w.Body.String(), ex.wantCode, ex.want)
	}

	// Operator confirms the weight is off the scale.
	w = env.do(http.MethodPost, "/api/v1/calibration/7001/weight", `{"weight":1,"step":5}`)
	var res operatorResult
	decodeJSON(t, w, &res)
	if !res.Success || res.Message != "weight removal confirmed" {
		t.Errorf("removal confirmation = %+v", res)
	}

	for _, ex := range []struct{ body, want string }{
		{`{"dev":"7001","ste":4}`, `@{"dev":"7001","ste":5,"val":0,"abo":0}@`},
		{`{"dev":"7001","ste":5}`, ``},
		{`{"dev":"7001","ste":6}`, `@{"dev":"7001","ste":6,"val":0,"abo":0}@`},
	} {
		w := env.do(http.MethodPost, "/device/calibration", ex.body)
		assertFirmwareReply(t, ex.body, w.Code, w.Body.String(), http.StatusOK, ex.want)
	}

	d, err := env.registry.FindBySerial(context.Background(), "7001")
	if err != nil {
		t.Fatalf("FindBySerial() error = %v", err)
	}
	if d.CalibrationRunning || d.CalibrationStep != 6 || d.LastCalibrationAt == nil {
		t.Errorf("after finalize: running=%v step=%d last=%v", d.CalibrationRunning, d.CalibrationStep, d.LastCalibrationAt)
	}

	// The heartbeat no longer asks for calibration.
	w = env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7001"}`)
	assertFirmwareReply(t, "heartbeat", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7001","err":0}@`)
}

func TestCalibrationReport_WaitIsEmptyText(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7002", nil)

	w := env.do(http.MethodPost, "/device/calibration", `{"dev":"7002","ste":3}`)
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("wait reply = %d %q, want empty 200", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != wire.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, wire.ContentType)
	}
}

func TestCalibrationReport_Aborts(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7003", nil)
	env.seed(t, "7004", func(d *device.Device) { d.Active = false })
	env.seed(t, "7005", func(d *device.Device) {
		d.CalibrationRunning = true
		d.CalibrationWeight = device.WeightOf(5)
	})

	tests := []struct {
		name     string
		body     string
		wantCode int
		want     string
	}{
		{"unknown device", `{"dev":"9999","ste":0}`, http.StatusNotFound, `@{"dev":"9999","ste":0,"val":-1,"abo":1}@`},
		{"inactive device", `{"dev":"7004","ste":0}`, http.StatusOK, `@{"dev":"7004","ste":0,"val":-2,"abo":1}@`},
		{"step 0 without weight", `{"dev":"7003","ste":0}`, http.StatusOK, `@{"dev":"7003","ste":1,"val":0,"abo":1}@`},
		{"firmware error at step 2", `{"dev":"7005","ste":2,"err":3}`, http.StatusOK, `@{"dev":"7005","ste":2,"val":0,"abo":1}@`},
		{"unknown step", `{"dev":"7005","ste":9}`, http.StatusOK, `@{"dev":"7005","ste":9,"val":0,"abo":1}@`},
		{"missing step", `{"dev":"7005"}`, http.StatusBadRequest, wire.ErrorToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/device/calibration", tt.body)
			assertFirmwareReply(t, tt.name, w.Code, w.Body.String(), tt.wantCode, tt.want)
		})
	}

	d, err := env.registry.FindBySerial(context.Background(), "7005")
	if err != nil {
		t.Fatalf("FindBySerial() error = %v", err)
	}
	if d.CalibrationError != 3 {
		t.Errorf("calibration_error = %d, want 3", d.CalibrationError)
	}
}

// A failed write still answers 200, with the abort riding in the payload
// and the reported step echoed back.
func TestCalibrationReport_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7012", func(d *device.Device) {
		d.CalibrationRunning = true
		d.CalibrationWeight = device.WeightOf(5)
	})

	_, err := env.db.ExecContext(context.Background(), `
		CREATE TRIGGER fail_device_updates BEFORE UPDATE ON devices
		BEGIN
			SELECT RAISE(ABORT, 'disk full');
		END`)
	if err != nil {
		t.Fatalf("creating trigger: %v", err)
	}

	w := env.do(http.MethodPost, "/device/calibration", `{"dev":"7012","ste":2}`)
	assertFirmwareReply(t, "step 2", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7012","ste":2,"val":0,"abo":1}@`)

	d, err := env.registry.FindBySerial(context.Background(), "7012")
	if err != nil {
		t.Fatalf("FindBySerial() error = %v", err)
	}
	if d.CalibrationStep != 0 {
		t.Errorf("calibration_step = %d, want unchanged 0", d.CalibrationStep)
	}
	if len(env.events.kinds()) != 0 {
		t.Error("failed report published a calibration event")
	}
}

func TestCalibrationReport_PublishesEvents(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7006", func(d *device.Device) {
		d.CalibrationRunning = true
		d.CalibrationWeight = device.WeightOf(3)
	})

	env.do(http.MethodPost, "/device/calibration", `{"dev":"7006","ste":0}`)
	env.do(http.MethodPost, "/device/heartbeat", `{"dev":"7006"}`)

	kinds := env.events.kinds()
	want := []events.Kind{events.KindCalibrationStep, events.KindHeartbeatCalibrate}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestConfig_Message(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "7201", func(d *device.Device) { d.Sensors.LoadCell = 5 })
	env.seed(t, "7202", func(d *device.Device) {
		d.Sensors.Temperature = 1
		d.SendFrequency = device.Ptr(120)
	})
	env.seed(t, "7203", func(d *device.Device) { d.Active = false })

	w := env.do(http.MethodPost, "/device/config", `{"dev":"7201"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "@1>-1;2>5;3>-1;4>-1;5>-1;6>-1;") || !strings.HasSuffix(body, ";30#@") {
		t.Errorf("config message = %q", body)
	}

	w = env.do(http.MethodPost, "/device/config", `{"dev":"7202"}`)
	body = w.Body.String()
	if !strings.HasPrefix(body, "@1>1;2>-1;") || !strings.HasSuffix(body, ";120#@") {
		t.Errorf("config message = %q", body)
	}

	w = env.do(http.MethodPost, "/device/config", `{"dev":"9999"}`)
	assertFirmwareReply(t, "unknown", w.Code, w.Body.String(), http.StatusNotFound, `@{"dev":"9999","abo":1,"ste":0,"val":-1}@`)

	w = env.do(http.MethodPost, "/device/config", `{"dev":"7203"}`)
	assertFirmwareReply(t, "inactive", w.Code, w.Body.String(), http.StatusOK, `@{"dev":"7203","abo":1,"ste":0,"val":-2}@`)

	w = env.do(http.MethodPost, "/device/config", `{}`)
	assertFirmwareReply(t, "malformed", w.Code, w.Body.String(), http.StatusBadRequest, wire.ErrorToken)
}

func TestFirmware_OversizedBody(t *testing.T) {
	env := newTestEnv(t)

	body := `{"dev":"` + strings.Repeat("7", wire.MaxRequestSize) + `"}`
	w := env.do(http.MethodPost, "/device/heartbeat", body)
	assertFirmwareReply(t, "oversized", w.Code, w.Body.String(), http.StatusBadRequest, wire.ErrorToken)
}
