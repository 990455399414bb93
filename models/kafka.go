package models

type Record struct {
	Key   []byte
	Value []byte
	Topic string
}
