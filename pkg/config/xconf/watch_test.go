package xconf

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	// Given: 运行中的监视器
	path := writeFile(t, "config.yaml", sampleYAML)
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloads int
	var lastErr error
	w, err := Watch(cfg, func(_ Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		reloads++
		lastErr = err
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// When: 修改文件
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))

	// Then: 防抖后重载，新值可见
	assert.Eventually(t, func() bool {
		return cfg.Client().String("log.level") == "debug"
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.GreaterOrEqual(t, reloads, 1)
	assert.NoError(t, lastErr)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "config.yaml", sampleYAML)
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloads int
	w, err := Watch(cfg, func(Config, error) {
		mu.Lock()
		reloads++
		mu.Unlock()
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	other := path + ".bak"
	require.NoError(t, os.WriteFile(other, []byte("x: 1"), 0600))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, reloads)
	mu.Unlock()
	require.NoError(t, w.Stop())
}

func TestWatch_StopIsIdempotent(t *testing.T) {
	cfg, err := New(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)
	w, err := Watch(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Run(context.Background()))
}

func TestWatch_FromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	_, err = Watch(cfg, nil)
	assert.ErrorIs(t, err, ErrNotWatchable)
}

func TestWatch_WhenBurstOfWrites_ReloadsOnceAfterQuiet(t *testing.T) {
	// Given: 防抖 200ms 的监视器
	path := writeFile(t, "config.yaml", sampleYAML)
	cfg, err := New(path)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloads int
	w, err := Watch(cfg, func(Config, error) {
		mu.Lock()
		reloads++
		mu.Unlock()
	}, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// When: 间隔小于防抖窗口连续写入
	for range 5 {
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))
		time.Sleep(10 * time.Millisecond)
	}

	// Then: 静默后只重载一次
	require.Eventually(t, func() bool {
		return cfg.Client().String("log.level") == "debug"
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, reloads)
	mu.Unlock()
	require.NoError(t, w.Stop())
}
