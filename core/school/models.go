package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Class struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	Section   string    `json:"section"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type NewSchool struct {
	Name string `json:"name" validate:"required,notblank,max=128"`
	Code string `json:"code" validate:"required,min=2,max=32,alphanum_"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code, true /* lower */)
	return validate.Struct(ns)
}

type NewClass struct {
	Name    string `json:"name" validate:"required,notblank,max=64"`
	Section string `json:"section" validate:"max=32"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Section = core.CleanString(nc.Section)
	return validate.Struct(nc)
}
