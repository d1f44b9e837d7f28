// Package compare 提供带容差的深度比较，用于跳过结构未变化时的重复工作
package compare

import (
	"math"
	"reflect"
	"time"
)

// DefaultEpsilon 机器精度 (2^-52)
const DefaultEpsilon = 2.220446049250313e-16

// PriceEpsilon 比较价格时使用的粗粒度容差，吸收传输编码带来的舍入
const PriceEpsilon = 0.01

var timeType = reflect.TypeOf(time.Time{})

// Equal 以机器精度比较 a 与 b
func Equal(a, b any) bool {
	return ApproxEqual(a, b, DefaultEpsilon)
}

// ApproxEqual 深度比较 a 与 b，数值差 |a-b| <= epsilon 视为相等，两个 NaN 相等。
// 切片/数组按序列比较，map 与 struct 按键集合比较 (键顺序无关)，形状不同则不相等。
func ApproxEqual(a, b any, epsilon float64) bool {
	return equalValues(reflect.ValueOf(a), reflect.ValueOf(b), epsilon)
}

func equalValues(a, b reflect.Value, epsilon float64) bool {
	if samePointer(a, b) {
		return true
	}
	a, b = indirect(a), indirect(b)

	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		if x == y {
			return true
		}
		return math.Abs(x-y) <= epsilon
	}

	switch a.Kind() {
	case reflect.Slice, reflect.Array:
		if b.Kind() != reflect.Slice && b.Kind() != reflect.Array {
			return false
		}
		return equalSequences(a, b, epsilon)
	case reflect.Map:
		if b.Kind() != reflect.Map {
			return false
		}
		return equalMaps(a, b, epsilon)
	case reflect.Struct:
		if b.Kind() != reflect.Struct {
			return false
		}
		if a.Type() == timeType && b.Type() == timeType {
			if ta, ok := asTime(a); ok {
				if tb, ok := asTime(b); ok {
					return ta.Equal(tb)
				}
			}
		}
		return equalStructs(a, b, epsilon)
	case reflect.String:
		return b.Kind() == reflect.String && a.String() == b.String()
	case reflect.Bool:
		return b.Kind() == reflect.Bool && a.Bool() == b.Bool()
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// 只比较身份
		return a.Kind() == b.Kind() && a.Pointer() == b.Pointer()
	}
	return false
}

func samePointer(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() || a.Kind() != reflect.Pointer || b.Kind() != reflect.Pointer {
		return false
	}
	return a.Type() == b.Type() && !a.IsNil() && a.Pointer() == b.Pointer()
}

// indirect 解开指针和接口
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func number(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	}
	return 0, false
}

func equalSequences(a, b reflect.Value, epsilon float64) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.Kind() == reflect.Slice && b.Kind() == reflect.Slice && a.Type() == b.Type() &&
		a.Len() > 0 && a.Pointer() == b.Pointer() {
		return true
	}
	for i := 0; i < a.Len(); i++ {
		if !equalValues(a.Index(i), b.Index(i), epsilon) {
			return false
		}
	}
	return true
}

func equalMaps(a, b reflect.Value, epsilon float64) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.Type() == b.Type() && a.Pointer() == b.Pointer() {
		return true
	}
	keyType := b.Type().Key()
	iter := a.MapRange()
	for iter.Next() {
		key := iter.Key()
		if !key.Type().AssignableTo(keyType) {
			if !key.Type().ConvertibleTo(keyType) || key.Kind() != keyType.Kind() {
				return false
			}
			key = key.Convert(keyType)
		}
		other := b.MapIndex(key)
		if !other.IsValid() {
			return false
		}
		if !equalValues(iter.Value(), other, epsilon) {
			return false
		}
	}
	return true
}

// equalStructs 以字段名为键比较，两个结构体的字段集合必须一致
func equalStructs(a, b reflect.Value, epsilon float64) bool {
	ta, tb := a.Type(), b.Type()
	if ta.NumField() != tb.NumField() {
		return false
	}
	for i := 0; i < ta.NumField(); i++ {
		name := ta.Field(i).Name
		if _, ok := tb.FieldByName(name); !ok {
			return false
		}
		if !equalValues(a.Field(i), b.FieldByName(name), epsilon) {
			return false
		}
	}
	return true
}

func asTime(v reflect.Value) (time.Time, bool) {
	if v.CanInterface() {
		return v.Interface().(time.Time), true
	}
	// 未导出字段中的 time.Time 无法 Interface()，可寻址时按地址读取
	if v.CanAddr() {
		return *(*time.Time)(v.Addr().UnsafePointer()), true
	}
	return time.Time{}, false
}
