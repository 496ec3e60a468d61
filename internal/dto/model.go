package dto

type UnloadModelRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}
