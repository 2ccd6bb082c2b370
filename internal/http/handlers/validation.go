package handlers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
)

const lifecycleStatusTag = "lifecycle_status"

var registerOnce sync.Once

// RegisterValidators adds the catalog tags to gin's binding validator.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
			return
		}
		err = v.RegisterValidation(lifecycleStatusTag, lifecycleStatusValidation)
	})
	return err
}

func lifecycleStatusValidation(fl validator.FieldLevel) bool {
	return lifecycle.Status(fl.Field().String()).Valid()
}
