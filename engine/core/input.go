package core

// Mouse button identifiers.
type Button uint16

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
	buttonMax
)

// Key code definitions, aligned with the platform layer's translation
// table.
type KeyCode uint16

const (
	KeyBackspace KeyCode = 0x08
	KeyEnter     KeyCode = 0x0D
	KeyTab       KeyCode = 0x09
	KeyShift     KeyCode = 0x10
	KeyControl   KeyCode = 0x11
	KeyEscape    KeyCode = 0x1B
	KeySpace     KeyCode = 0x20
	KeyEnd       KeyCode = 0x23
	KeyHome      KeyCode = 0x24
	KeyLeft      KeyCode = 0x25
	KeyUp        KeyCode = 0x26
	KeyRight     KeyCode = 0x27
	KeyDown      KeyCode = 0x28
	KeyDelete    KeyCode = 0x2E

	KeyA KeyCode = 0x41
	KeyB KeyCode = 0x42
	KeyC KeyCode = 0x43
	KeyD KeyCode = 0x44
	KeyE KeyCode = 0x45
	KeyF KeyCode = 0x46
	KeyG KeyCode = 0x47
	KeyH KeyCode = 0x48
	KeyI KeyCode = 0x49
	KeyJ KeyCode = 0x4A
	KeyK KeyCode = 0x4B
	KeyL KeyCode = 0x4C
	KeyM KeyCode = 0x4D
	KeyN KeyCode = 0x4E
	KeyO KeyCode = 0x4F
	KeyP KeyCode = 0x50
	KeyQ KeyCode = 0x51
	KeyR KeyCode = 0x52
	KeyS KeyCode = 0x53
	KeyT KeyCode = 0x54
	KeyU KeyCode = 0x55
	KeyV KeyCode = 0x56
	KeyW KeyCode = 0x57
	KeyX KeyCode = 0x58
	KeyY KeyCode = 0x59
	KeyZ KeyCode = 0x5A

	keyMax KeyCode = 0x100
)

type keyboardState struct {
	keys [keyMax]bool
}

type mouseState struct {
	x, y    int32
	buttons [buttonMax]bool
}

type inputState struct {
	keyboardCurrent  keyboardState
	keyboardPrevious keyboardState
	mouseCurrent     mouseState
	mousePrevious    mouseState
}

var input *inputState

func InputInitialize() {
	input = &inputState{}
}

func InputShutdown() {
	input = nil
}

// InputUpdate rolls current state into previous state. Call once per frame
// after the platform pumped its messages.
func InputUpdate() {
	if input == nil {
		return
	}
	input.keyboardPrevious = input.keyboardCurrent
	input.mousePrevious = input.mouseCurrent
}

// InputProcessKey updates internal state and fires a pressed/released
// event when the state changed.
func InputProcessKey(key KeyCode, pressed bool) {
	if input == nil || key >= keyMax {
		return
	}
	if input.keyboardCurrent.keys[key] == pressed {
		return
	}
	input.keyboardCurrent.keys[key] = pressed
	code := EventCodeKeyPressed
	if !pressed {
		code = EventCodeKeyReleased
	}
	EventFire(code, nil, KeyEvent{Key: key})
}

func InputProcessButton(button Button, pressed bool) {
	if input == nil || button >= buttonMax {
		return
	}
	if input.mouseCurrent.buttons[button] == pressed {
		return
	}
	input.mouseCurrent.buttons[button] = pressed
	code := EventCodeButtonPressed
	if !pressed {
		code = EventCodeButtonReleased
	}
	EventFire(code, nil, ButtonEvent{Button: button, X: input.mouseCurrent.x, Y: input.mouseCurrent.y})
}

func InputProcessMouseMove(x, y int32) {
	if input == nil {
		return
	}
	if input.mouseCurrent.x == x && input.mouseCurrent.y == y {
		return
	}
	input.mouseCurrent.x = x
	input.mouseCurrent.y = y
	EventFire(EventCodeMouseMoved, nil, MouseMoveEvent{X: x, Y: y})
}

func InputProcessMouseWheel(delta int8) {
	if input == nil {
		return
	}
	EventFire(EventCodeMouseWheel, nil, MouseWheelEvent{Delta: delta})
}

func InputIsKeyDown(key KeyCode) bool {
	return input != nil && key < keyMax && input.keyboardCurrent.keys[key]
}

func InputWasKeyDown(key KeyCode) bool {
	return input != nil && key < keyMax && input.keyboardPrevious.keys[key]
}

func InputIsButtonDown(button Button) bool {
	return input != nil && button < buttonMax && input.mouseCurrent.buttons[button]
}

func InputMousePosition() (int32, int32) {
	if input == nil {
		return 0, 0
	}
	return input.mouseCurrent.x, input.mouseCurrent.y
}
