package core

import "errors"

// ErrDuplicateID is returned by InsertOne when a document with the same
// identifier already exists. Inserts never upsert.
var ErrDuplicateID = errors.New("document id already exists")

// ErrConflict is returned by UpdateOne when the document changed between
// read and rewrite. The operation is safe to retry.
var ErrConflict = errors.New("concurrent update conflict")
