package gps

import (
	"context"
	"math"
	"testing"
	"time"

	"pilot-ng/internal/sensors"
)

const (
	rmcActive = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcVoid   = "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"
	ggaFix    = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
)

func TestFeed_RMCActive(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine(rmcActive)

	var fix sensors.GPSFix
	f.Update(&fix)

	if fix.Status != sensors.LinkActive {
		t.Fatalf("status=%v want active", fix.Status)
	}
	wantLat := 48.1173 * math.Pi / 180.0
	if math.Abs(fix.LatitudeRad-wantLat) > 1e-6 {
		t.Fatalf("lat=%v want=%v", fix.LatitudeRad, wantLat)
	}
	wantLon := (11.0 + 31.0/60.0) * math.Pi / 180.0
	if math.Abs(fix.LongitudeRad-wantLon) > 1e-6 {
		t.Fatalf("lon=%v want=%v", fix.LongitudeRad, wantLon)
	}
	if math.Abs(fix.SpeedMS-22.4*knotsToMS) > 1e-9 {
		t.Fatalf("speed=%v want=%v", fix.SpeedMS, 22.4*knotsToMS)
	}
	if fix.CourseDeg != 84.4 {
		t.Fatalf("course=%v want 84.4", fix.CourseDeg)
	}
}

func TestFeed_RMCVoid(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine(rmcVoid)

	var fix sensors.GPSFix
	f.Update(&fix)
	if fix.Status != sensors.LinkVoid {
		t.Fatalf("status=%v want void", fix.Status)
	}
}

func TestFeed_GGASatellites(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine(ggaFix)

	var fix sensors.GPSFix
	f.Update(&fix)
	if fix.SatellitesInView != 8 {
		t.Fatalf("sats=%d want 8", fix.SatellitesInView)
	}
}

func TestFeed_GGAKeepsRMCFields(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine(rmcActive)
	f.handleLine(ggaFix)

	var fix sensors.GPSFix
	f.Update(&fix)
	if fix.Status != sensors.LinkActive || fix.SatellitesInView != 8 {
		t.Fatalf("fix=%+v want active with 8 sats", fix)
	}
}

func TestFeed_NoiseIgnored(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine("")
	f.handleLine("garbage without dollar")
	f.handleLine("$GPRMC,bad,checksum*00")

	select {
	case <-f.Arrival():
		t.Fatalf("noise must not signal arrival")
	default:
	}
}

func TestFeed_ArrivalCoalesces(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine(rmcActive)
	f.handleLine(ggaFix)

	// The buffer holds one pending signal; a burst coalesces.
	select {
	case <-f.Arrival():
	default:
		t.Fatalf("arrival should be pending")
	}
	select {
	case <-f.Arrival():
		t.Fatalf("burst should coalesce into one pending signal")
	default:
	}
}

func TestFeed_AwaitFirstReturnsOnceSeen(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	f.handleLine(rmcActive)

	done := make(chan struct{})
	go func() {
		f.AwaitFirst(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("AwaitFirst did not return after first sentence")
	}
}

func TestFeed_AwaitFirstHonorsContext(t *testing.T) {
	f := NewFeed(FeedConfig{Device: "/dev/null"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		f.AwaitFirst(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("AwaitFirst did not honor context cancellation")
	}
}
