package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsLoginValidation(t *testing.T) {
	job := &DevJob{}
	assert.False(t, job.NeedsLoginValidation())

	job.GhLoginGistLatest = "abc123"
	assert.True(t, job.NeedsLoginValidation())

	job.GhLoginGistValidation = "abc123"
	assert.False(t, job.NeedsLoginValidation())

	// Latest cleared while a validated gist exists means unlink requested
	job.GhLoginGistLatest = ""
	assert.True(t, job.NeedsLoginValidation())
}

func TestSearchDocID(t *testing.T) {
	job := &DevJob{OwnerID: "owner-1"}
	assert.Equal(t, "owner-1", job.SearchDocID())

	job.GhNodeID = "MDQ6VXNlcjE="
	assert.Equal(t, "MDQ6VXNlcjE=", job.SearchDocID())
}
