package core

import "sync"

const avgSampleCount = 30

type MetricsState struct {
	frameAvgCounter uint8
	msTimes         [avgSampleCount]float64
	msAvg           float64
	frames          int32
	accumulatedMS   float64
	fps             float64
}

var onceMetrics sync.Once
var metricsState *MetricsState

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return nil
}

// MetricsUpdate folds one frame's elapsed seconds into the rolling frame
// time average and the frames-per-second counter.
func MetricsUpdate(frameElapsedTime float64) {
	if metricsState == nil {
		return
	}
	frameMS := frameElapsedTime * 1000.0
	metricsState.msTimes[metricsState.frameAvgCounter] = frameMS
	if metricsState.frameAvgCounter == avgSampleCount-1 {
		sum := 0.0
		for i := 0; i < avgSampleCount; i++ {
			sum += metricsState.msTimes[i]
		}
		metricsState.msAvg = sum / float64(avgSampleCount)
	}
	metricsState.frameAvgCounter++
	metricsState.frameAvgCounter %= avgSampleCount

	metricsState.accumulatedMS += frameMS
	if metricsState.accumulatedMS > 1000 {
		metricsState.fps = float64(metricsState.frames)
		metricsState.accumulatedMS -= 1000
		metricsState.frames = 0
	}
	metricsState.frames++
}

func MetricsFPS() float64 {
	if metricsState == nil {
		return 0
	}
	return metricsState.fps
}

func MetricsFrameTime() float64 {
	if metricsState == nil {
		return 0
	}
	return metricsState.msAvg
}

func MetricsFrame() (float64, float64) {
	return MetricsFPS(), MetricsFrameTime()
}
