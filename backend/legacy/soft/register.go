package soft

import (
	"github.com/gogpu/sprite/backend"
	"github.com/gogpu/sprite/backend/legacy"
	"github.com/gogpu/sprite/gpucore"
)

func init() {
	backend.Register(backend.NameLegacy, func() (gpucore.Backend, error) {
		return legacy.New(New(0, 0), legacy.Config{})
	})
}
