package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueDeduplicatesPendingPaths(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	require.True(t, q.Push("a.mp3"))
	require.True(t, q.Push("b.mp3"))
	require.False(t, q.Push("a.mp3"))
	require.Equal(t, 2, q.Len())

	ctx := context.Background()
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a.mp3", first)

	// Once taken, the path may be queued again.
	require.True(t, q.Push("a.mp3"))

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "b.mp3", second)
	third, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a.mp3", third)
}

func TestQueuePopHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewQueue().Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueuePopWakesOnPush(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	got := make(chan string, 1)
	go func() {
		p, _ := q.Pop(context.Background())
		got <- p
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push("late.wav")
	select {
	case p := <-got:
		require.Equal(t, "late.wav", p)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestSettlerWaitsForQuiet(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var fired []string
	s := newSettler(50*time.Millisecond, func(p string) {
		mu.Lock()
		fired = append(fired, p)
		mu.Unlock()
	})
	defer s.stop()

	for i := 0; i < 5; i++ {
		s.touch("rec.m4a")
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"rec.m4a"}, fired)
}

func TestScanFindsAudioAndSkipsHiddenFolders(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, rel := range []string{
		"b.mp3",
		"a/voice.M4A",
		"a/voice_transcription.md",
		".obsidian/cached.wav",
		"notes.txt",
	} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	files, err := Scan(root)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a", "voice.M4A"),
		filepath.Join(root, "b.mp3"),
	}, files)

	_, err = Scan(filepath.Join(root, "missing"))
	require.Error(t, err)
}

func TestNewRejectsMissingFolder(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
}

func TestWatcherDeliversSettledFilesOneAtATime(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, err := New(root, Options{SettleDelay: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []string
	inFlight, maxInFlight := 0, 0
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, path string) error {
			mu.Lock()
			inFlight++
			maxInFlight = max(maxInFlight, inFlight)
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inFlight--
			handled = append(handled, filepath.Base(path))
			mu.Unlock()
			return nil
		})
	}()

	sub := filepath.Join(root, "inbox")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "one.mp3"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "two.wav"), []byte("2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.txt"), []byte("3"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"one.mp3", "two.wav"}, handled)
	require.Equal(t, 1, maxInFlight)
}

func TestWatcherStopsOnHandlerError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "existing.mp3")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	w, err := New(root, Options{SettleDelay: time.Hour})
	require.NoError(t, err)
	require.True(t, w.Enqueue(path))

	boom := errors.New("ledger write failed")
	err = w.Run(context.Background(), func(context.Context, string) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestCloseWithoutRun(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
