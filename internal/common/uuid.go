package common

import "github.com/google/uuid"

type UUID = uuid.UUID

var NilUUID = uuid.Nil

func NewUUID() UUID {
	return uuid.New()
}

func ParseUUID(value string) (UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return NilUUID, NewError(CodeValidation, "invalid id", err)
	}
	return id, nil
}
