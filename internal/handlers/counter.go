package handlers

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"ahorrove/internal/logger"
)

type counterData struct {
	Calculos int64 `json:"calculos"`
}

var (
	counterMu       sync.Mutex
	counterValue    int64
	pendingWrites   int
	counterFilePath = "counter.json"
	flushTicker     *time.Ticker
	flushStop       chan struct{}
)

const flushEveryN = 10
const flushInterval = 30 * time.Second

// InitCounter loads the persisted count from path and starts the periodic flush.
func InitCounter(path string) {
	counterMu.Lock()
	defer counterMu.Unlock()

	if path != "" {
		counterFilePath = path
	}
	counterValue = 0
	pendingWrites = 0

	data, err := os.ReadFile(counterFilePath)
	if err != nil {
		logger.Info("counter file not found, starting from zero", map[string]interface{}{"path": counterFilePath})
	} else {
		var cd counterData
		if err := json.Unmarshal(data, &cd); err != nil {
			logger.Warn("counter file unreadable, starting from zero", map[string]interface{}{"error": err.Error()})
		} else {
			counterValue = cd.Calculos
			logger.Info("counter loaded", map[string]interface{}{"calculos": counterValue})
		}
	}

	if flushTicker != nil {
		return
	}
	flushTicker = time.NewTicker(flushInterval)
	flushStop = make(chan struct{})
	go func(t *time.Ticker, stop chan struct{}) {
		for {
			select {
			case <-t.C:
				flushCounter()
			case <-stop:
				return
			}
		}
	}(flushTicker, flushStop)
}

// StopCounter stops the periodic flush and writes any pending increments.
func StopCounter() {
	counterMu.Lock()
	if flushTicker != nil {
		flushTicker.Stop()
		close(flushStop)
		flushTicker = nil
	}
	counterMu.Unlock()
	flushCounter()
}

func IncrementCounter() int64 {
	counterMu.Lock()
	counterValue++
	val := counterValue
	pendingWrites++
	shouldFlush := pendingWrites >= flushEveryN
	counterMu.Unlock()

	if shouldFlush {
		flushCounter()
	}
	return val
}

func GetCounter() int64 {
	counterMu.Lock()
	defer counterMu.Unlock()
	return counterValue
}

func flushCounter() {
	counterMu.Lock()
	if pendingWrites == 0 {
		counterMu.Unlock()
		return
	}
	val := counterValue
	path := counterFilePath
	pendingWrites = 0
	counterMu.Unlock()

	data, err := json.Marshal(counterData{Calculos: val})
	if err != nil {
		logger.Error("counter marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Error("counter write failed", map[string]interface{}{"path": path, "error": err.Error()})
	}
}
