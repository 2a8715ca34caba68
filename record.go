package zerovault

import (
	"fmt"
	"reflect"

	"github.com/zerovault/zerovault/internal/value"
	"github.com/zerovault/zerovault/internal/zverrors"
)

// Record is the minimal contract Save and Delete require of a row
// type: a struct whose exported fields carry `db:"..."` tags naming
// their columns, with exactly one of those fields additionally tagged
// `zv:"id"` to mark the string primary key (spec §3 "each row must
// carry a string primary key usable as entity_id").
type Record interface {
	TableName() string
}

type recordShape struct {
	table    string
	pkColumn string
	pkValue  string
	fields   map[string]value.Value
}

// parseRecord reflects rec's db/zv tags into the shape Writer.Save
// needs. Unexported fields and fields without a db tag (or tagged
// `db:"-"`) are skipped.
func parseRecord(rec Record) (recordShape, error) {
	rv := reflect.ValueOf(rec)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return recordShape{}, zverrors.New(zverrors.Configuration, "parse record",
			fmt.Errorf("zerovault: %T is not a struct", rec))
	}
	rt := rv.Type()

	shape := recordShape{table: rec.TableName(), fields: make(map[string]value.Value)}

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		col := sf.Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}

		fv := rv.Field(i)
		if sf.Tag.Get("zv") == "id" {
			s, ok := fv.Interface().(string)
			if !ok {
				return recordShape{}, zverrors.New(zverrors.Configuration, "parse record",
					fmt.Errorf("zerovault: primary key field %q must be a string, got %s", sf.Name, fv.Kind()))
			}
			shape.pkColumn = col
			shape.pkValue = s
			continue
		}

		v, err := value.FromAny(fv.Interface())
		if err != nil {
			return recordShape{}, zverrors.New(zverrors.Configuration, "parse record", err)
		}
		shape.fields[col] = v
	}

	if shape.pkColumn == "" {
		return recordShape{}, zverrors.New(zverrors.Configuration, "parse record",
			fmt.Errorf("zerovault: %s has no field tagged `zv:\"id\"`", shape.table))
	}
	return shape, nil
}

// setPKReflect returns a copy of rec (a Record, passed as any so the
// generic Save wrapper can convert it back to T) with its zv:"id"
// field set to pkValue.
func setPKReflect(rec any, pkValue string) any {
	rv := reflect.ValueOf(rec)
	out := reflect.New(rv.Type()).Elem()
	out.Set(rv)

	rt := out.Type()
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).Tag.Get("zv") == "id" {
			out.Field(i).SetString(pkValue)
			break
		}
	}
	return out.Interface()
}
