package internal

import (
	"github.com/go-playground/validator/v10"
)

// nodeTypes mirrors the node kinds the canvas knows how to render
var nodeTypes = map[string]bool{
	"start":    true,
	"action":   true,
	"decision": true,
	"terminal": true,
}

func NodeTypeValidator(fl validator.FieldLevel) bool {
	return nodeTypes[fl.Field().String()]
}

func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nodetype", NodeTypeValidator)
	return v
}
