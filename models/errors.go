package models

// ErrorKind classifies a pipeline failure by the stage that produced it.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindFetch      ErrorKind = "fetch"
	KindDecode     ErrorKind = "decode"
	KindTransform  ErrorKind = "transform"
	KindStore      ErrorKind = "store"
	KindUpdate     ErrorKind = "update"
)
