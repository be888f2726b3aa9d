package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockPlayer_PlaysForClipDuration(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()

	if player.State() != StateStopped {
		t.Errorf("initial state should be stopped, got %v", player.State())
	}

	pcm := make([]byte, 2400) // 50ms at 24 kHz mono
	start := time.Now()
	if err := player.Play(context.Background(), pcm); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Play returned after %v, expected ~50ms", elapsed)
	}
	if player.IsPlaying() {
		t.Error("player should be stopped after the clip ends")
	}
	if m := player.GetMetrics(); m.PlayCount != 1 || m.DoneCount != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestMockPlayer_StopInterrupts(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()

	done := make(chan error, 1)
	go func() {
		done <- player.Play(context.Background(), make([]byte, 48000*10))
	}()

	deadline := time.Now().Add(time.Second)
	for !player.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	player.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrInterrupted) {
			t.Errorf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt Play")
	}
	if player.IsPlaying() {
		t.Error("player should not be playing after Stop")
	}
}

func TestMockPlayer_ContextCancel(t *testing.T) {
	player := DefaultMockPlayer()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := player.Play(ctx, make([]byte, 48000*10))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestMockPlayer_FailNextAndClose(t *testing.T) {
	player := DefaultMockPlayer()
	player.SetDelayFactor(0)

	boom := errors.New("boom")
	player.FailNext(boom)
	if err := player.Play(context.Background(), []byte{0, 0}); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	if err := player.Play(context.Background(), []byte{0, 0}); err != nil {
		t.Errorf("second play should succeed, got %v", err)
	}
	if err := player.Play(context.Background(), nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}

	_ = player.Close()
	if err := player.Play(context.Background(), []byte{0, 0}); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("expected ErrPlayerClosed, got %v", err)
	}
}

func TestMockPlayer_Volume(t *testing.T) {
	player := DefaultMockPlayer()
	if err := player.SetVolume(0.5); err != nil {
		t.Fatal(err)
	}
	if player.Volume() != 0.5 {
		t.Errorf("expected 0.5, got %f", player.Volume())
	}
	if err := player.SetVolume(1.5); err == nil {
		t.Error("expected error for volume above 1")
	}
}
