package nbconfig

import "math"

const msPerSecond = 1000

// ToUploadIntervalSeconds converts a millisecond interval for display,
// rounding to whole seconds. Non-positive results yield fallbackSeconds.
func ToUploadIntervalSeconds(uploadIntervalMs interface{}, fallbackSeconds int) int {
	ms := toIntOr(uploadIntervalMs, fallbackSeconds*msPerSecond)
	seconds := int(math.Round(float64(ms) / msPerSecond))
	if seconds > 0 {
		return seconds
	}
	return fallbackSeconds
}

// ToUploadIntervalMs converts whole seconds back to milliseconds.
func ToUploadIntervalMs(uploadIntervalSeconds interface{}, fallbackMs int) int {
	fallbackSeconds := int(math.Round(float64(fallbackMs) / msPerSecond))
	if fallbackSeconds < 1 {
		fallbackSeconds = 1
	}
	seconds := toIntOr(uploadIntervalSeconds, fallbackSeconds)
	if seconds <= 0 {
		return fallbackMs
	}
	return seconds * msPerSecond
}
