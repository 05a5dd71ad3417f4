package sensors

import "testing"

func TestState_PublishKeepsWatchdogGPS(t *testing.T) {
	st := NewState()
	st.SetGPS(GPSFix{Status: LinkActive, SatellitesInView: 7, SpeedMS: 12.0})

	st.Publish(Data{AccZ: -1.0, GPS: GPSFix{Status: LinkVoid}})

	snap := st.Snapshot()
	if snap.AccZ != -1.0 {
		t.Fatalf("accZ=%v want -1.0", snap.AccZ)
	}
	if snap.GPS.Status != LinkActive || snap.GPS.SatellitesInView != 7 {
		t.Fatalf("gps=%+v, publish must not overwrite the watchdog's record", snap.GPS)
	}
}

func TestState_SetGPSVisibleInSnapshot(t *testing.T) {
	st := NewState()
	st.Publish(Data{Pressure: 101325})
	st.SetGPS(GPSFix{Status: LinkVoid, SatellitesInView: 3})

	snap := st.Snapshot()
	if snap.Pressure != 101325 {
		t.Fatalf("pressure=%v want 101325", snap.Pressure)
	}
	if snap.GPS.Status != LinkVoid || snap.GPS.SatellitesInView != 3 {
		t.Fatalf("gps=%+v want void/3", snap.GPS)
	}
}

func TestLinkState_String(t *testing.T) {
	cases := map[LinkState]string{
		LinkEmpty:     "empty",
		LinkVoid:      "void",
		LinkActive:    "active",
		LinkState(99): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("got=%q want=%q", got, want)
		}
	}
}
