package model

import "fmt"

// None marks an unknown dimension, usually the batch size.
const None = -1

// Shape describes a layer output, batch dimension included e.g. (None, 4).
type Shape []int

// Width returns the last dimension of the shape.
func (s Shape) Width() int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func (s Shape) String() string {
	str := "("
	for i, d := range s {
		if i > 0 {
			str += ", "
		}
		if d == None {
			str += "None"
		} else {
			str += fmt.Sprintf("%d", d)
		}
	}
	return str + ")"
}

// ValidateShape checks that the shape is a supported tabular shape.
// Shapes must not be empty and can have at most two dimensions.
func ValidateShape(shape Shape) error {
	if len(shape) == 0 {
		return fmt.Errorf("shape is empty: %w", ValidateShapeErr)
	}
	if len(shape) > 2 {
		return fmt.Errorf("shape %v contains more than 2 dimensions: %w", shape, ValidateShapeErr)
	}
	for _, d := range shape[1:] {
		if d < 1 {
			return fmt.Errorf("shape %v has non-positive dimension: %w", shape, ValidateShapeErr)
		}
	}
	return nil
}
