package structs

import (
	"reflect"
	"strings"

	"github.com/oleiade/reflections"
	"github.com/pkg/errors"
)

// GetField returns the value of the provided obj field. obj can whether be a structure or pointer to structure.
func GetField(obj any, name string) (any, error) {
	v, err := reflections.GetField(obj, name)
	return v, errors.Wrapf(err, "could not get field %s", name)
}

// FieldNames returns the exported field names of obj, including the ones promoted from embedded structs.
func FieldNames(obj any) ([]string, error) {
	names, err := reflections.FieldsDeep(obj)
	return names, errors.Wrap(err, "could not list fields")
}

// Lookup returns the field name of obj matching name regardless of its case.
func Lookup(obj any, name string) (string, error) {
	names, err := FieldNames(obj)
	if err != nil {
		return "", err
	}

	for _, n := range names {
		if strings.EqualFold(n, name) {
			return n, nil
		}
	}
	return "", errors.Errorf("unknown field %s", name)
}

// Project returns the named fields of obj, in the given order.
// All the exported fields are returned when no name is given.
func Project(obj any, names ...string) (map[string]any, error) {
	if len(names) == 0 {
		var err error
		if names, err = reflections.Fields(obj); err != nil {
			return nil, errors.Wrap(err, "could not list fields")
		}
	}

	projection := make(map[string]any, len(names))
	for _, name := range names {
		v, err := GetField(obj, name)
		if err != nil {
			return nil, err
		}
		projection[name] = v
	}
	return projection, nil
}

// ProjectSlice applies Project on each element of a slice or a pointer to a slice.
func ProjectSlice(objs any, names ...string) ([]map[string]any, error) {
	v := reflect.Indirect(reflect.ValueOf(objs))
	if v.Kind() != reflect.Slice {
		return nil, errors.New("not a slice")
	}

	projections := make([]map[string]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		p, err := Project(v.Index(i).Interface(), names...)
		if err != nil {
			return nil, err
		}
		projections[i] = p
	}
	return projections, nil
}
