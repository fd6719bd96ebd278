package schema

import "strings"

// CAM is the Control/Acknowledge Mode word of a command packet.
type CAM uint32

const (
	CAMControlleeEnable    CAM = 1 << 31
	CAMControlleeUUID      CAM = 1 << 30
	CAMControllerEnable    CAM = 1 << 29
	CAMControllerUUID      CAM = 1 << 28
	CAMPartialPermitted    CAM = 1 << 27
	CAMWarningsPermitted   CAM = 1 << 26
	CAMErrorsPermitted     CAM = 1 << 25
	CAMNackOnly            CAM = 1 << 22
	CAMValidation          CAM = 1 << 20
	CAMExecution           CAM = 1 << 19
	CAMQueryState          CAM = 1 << 18
	CAMWarnings            CAM = 1 << 16
	CAMErrors              CAM = 1 << 15
	CAMPartialAction       CAM = 1 << 12
	CAMScheduledOrExecuted CAM = 1 << 11

	CAMActionDryRun  CAM = CAM(ActionDryRun) << camActionShift
	CAMActionExecute CAM = CAM(ActionExecute) << camActionShift

	camActionShift     = 23
	camActionMask  CAM = 0x3 << camActionShift
)

// ActionMode is the CAM action field (bits 24-23).
type ActionMode uint8

const (
	ActionNone ActionMode = iota
	ActionDryRun
	ActionExecute
)

func (a ActionMode) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionDryRun:
		return "dry-run"
	case ActionExecute:
		return "execute"
	default:
		return "reserved"
	}
}

func (c CAM) Has(flag CAM) bool {
	return c&flag == flag
}

func (c CAM) Action() ActionMode {
	return ActionMode((c & camActionMask) >> camActionShift)
}

func (c CAM) WithAction(a ActionMode) CAM {
	return c&^camActionMask | CAM(a&0x3)<<camActionShift
}

// AckKinds lists the acknowledgement types requested or carried by c.
func (c CAM) AckKinds() []string {
	kinds := make([]string, 0, 3)
	if c.Has(CAMValidation) {
		kinds = append(kinds, "validation")
	}
	if c.Has(CAMExecution) {
		kinds = append(kinds, "execution")
	}
	if c.Has(CAMQueryState) {
		kinds = append(kinds, "query-state")
	}
	return kinds
}

func (c CAM) String() string {
	parts := []string{"action=" + c.Action().String()}
	if kinds := c.AckKinds(); len(kinds) > 0 {
		parts = append(parts, "ack="+strings.Join(kinds, "+"))
	}
	if c.Has(CAMWarnings) {
		parts = append(parts, "warnings")
	}
	if c.Has(CAMErrors) {
		parts = append(parts, "errors")
	}
	if c.Has(CAMPartialAction) {
		parts = append(parts, "partial")
	}
	return strings.Join(parts, " ")
}
