package main

import (
	"chat-relay/repositories"

	"github.com/mama165/sdk-go/database"
)

// RecordMapper decodes relay records for the badger inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Type, row.Detail = repositories.Describe(key, val)
	return row
}
