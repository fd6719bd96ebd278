package command

import (
	"fmt"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
)

// Identifier is a controllee or controller id, either a 32-bit word or a UUID.
type Identifier struct {
	Word   uint32
	UUID   [16]byte
	IsUUID bool
}

func WordID(v uint32) *Identifier {
	return &Identifier{Word: v}
}

func (id Identifier) words() int {
	if id.IsUUID {
		return 4
	}
	return 1
}

func (id Identifier) String() string {
	if id.IsUUID {
		return fmt.Sprintf("%x", id.UUID)
	}
	return fmt.Sprintf("0x%08x", id.Word)
}

func (id Identifier) append(dst []byte) []byte {
	if id.IsUUID {
		return append(dst, id.UUID[:]...)
	}
	return protocol.AppendU32(dst, id.Word)
}

// idCAM returns the CAM enable and format bits for the optional ids.
func idCAM(controllee, controller *Identifier) schema.CAM {
	var c schema.CAM
	if controllee != nil {
		c |= schema.CAMControlleeEnable
		if controllee.IsUUID {
			c |= schema.CAMControlleeUUID
		}
	}
	if controller != nil {
		c |= schema.CAMControllerEnable
		if controller.IsUUID {
			c |= schema.CAMControllerUUID
		}
	}
	return c
}

const idMask = schema.CAMControlleeEnable | schema.CAMControlleeUUID | schema.CAMControllerEnable | schema.CAMControllerUUID

// readIDs decodes the ids announced by cam from b at packet offset base. A
// format bit without its enable bit is ignored.
func readIDs(cam schema.CAM, b []byte, base int) (controllee, controller *Identifier, n int, err error) {
	read := func(uuid bool) (*Identifier, error) {
		id := Identifier{IsUUID: uuid}
		need := id.words() * 4
		if len(b)-n < need {
			return nil, protocol.NewParseError(protocol.ErrTruncated, base+n, "identifier needs %d bytes", need)
		}
		if uuid {
			copy(id.UUID[:], b[n:n+16])
		} else {
			id.Word = protocol.U32(b[n:])
		}
		n += need
		return &id, nil
	}
	if cam.Has(schema.CAMControlleeEnable) {
		if controllee, err = read(cam.Has(schema.CAMControlleeUUID)); err != nil {
			return nil, nil, 0, err
		}
	}
	if cam.Has(schema.CAMControllerEnable) {
		if controller, err = read(cam.Has(schema.CAMControllerUUID)); err != nil {
			return nil, nil, 0, err
		}
	}
	return controllee, controller, n, nil
}
