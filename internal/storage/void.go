package storage

import "fmt"

// VoidStorage discards everything, nothing can be loaded back.
type VoidStorage struct{}

func (VoidStorage) Store(k Key, value interface{}) error {
	return nil
}

func (VoidStorage) Load(k Key, value interface{}) error {
	return fmt.Errorf("nothing stored for '%s': %w", k.Path(), NotFoundErr)
}

// VoidShard is used when persistence is disabled.
func VoidShard() Shard {
	return func(shard string) (Persistence, error) {
		return VoidStorage{}, nil
	}
}
