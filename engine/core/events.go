package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EventCodeApplicationQuit SystemEventCode = 0x01
	// Keyboard key pressed. Payload is KeyEvent.
	EventCodeKeyPressed SystemEventCode = 0x02
	// Keyboard key released. Payload is KeyEvent.
	EventCodeKeyReleased SystemEventCode = 0x03
	// Mouse button pressed. Payload is ButtonEvent.
	EventCodeButtonPressed SystemEventCode = 0x04
	// Mouse button released. Payload is ButtonEvent.
	EventCodeButtonReleased SystemEventCode = 0x05
	// Mouse moved. Payload is MouseMoveEvent.
	EventCodeMouseMoved SystemEventCode = 0x06
	// Mouse wheel. Payload is MouseWheelEvent.
	EventCodeMouseWheel SystemEventCode = 0x07
	// Resized/resolution changed from the OS. Payload is ResizeEvent.
	EventCodeResized SystemEventCode = 0x08
	// A watched asset file changed on disk. Payload is AssetChangedEvent.
	EventCodeAssetChanged SystemEventCode = 0x09

	MaxEventCode SystemEventCode = 0xFF
)

type KeyEvent struct {
	Key KeyCode
}

type ButtonEvent struct {
	Button Button
	X, Y   int32
}

type MouseMoveEvent struct {
	X, Y int32
}

type MouseWheelEvent struct {
	Delta int8
}

type ResizeEvent struct {
	Width, Height uint32
}

type AssetChangedEvent struct {
	Path string
}

// Should return true if handled; handled events stop propagating.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, payload interface{}) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventSystemState struct {
	registered [MaxEventCode + 1][]*registeredEvent
}

var onceEvent sync.Once
var eventState *eventSystemState

func EventInitialize() bool {
	initialized := false
	onceEvent.Do(func() {
		eventState = &eventSystemState{}
		initialized = true
	})
	return initialized
}

func EventShutdown() error {
	if eventState == nil {
		return ErrNotInitialized
	}
	for i := range eventState.registered {
		eventState.registered[i] = nil
	}
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. A
 * duplicate listener for the same code is not registered again.
 * @returns true if the event is successfully registered.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if eventState == nil || code < 0 || code > MaxEventCode {
		return false
	}
	for _, e := range eventState.registered[code] {
		if e.listener == listener {
			LogWarn("event listener already registered for code 0x%02x", int(code))
			return false
		}
	}
	eventState.registered[code] = append(eventState.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code.
 * @returns true if a matching registration was removed.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if eventState == nil || code < 0 || code > MaxEventCode {
		return false
	}
	events := eventState.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If a handler returns true
 * the event is considered handled and is not passed on to more listeners.
 * @returns true if the event was handled.
 */
func EventFire(code SystemEventCode, sender interface{}, payload interface{}) bool {
	if eventState == nil || code < 0 || code > MaxEventCode {
		return false
	}
	for _, e := range eventState.registered[code] {
		if e.callback(code, sender, e.listener, payload) {
			return true
		}
	}
	return false
}
