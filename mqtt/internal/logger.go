// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
)

// Logger adds MQTT packet tracing to the shared logger.
type Logger struct{ log.Logger }

// Packet logs the exported fields of a paho packet at debug level.
func (l Logger) Packet(ctx context.Context, name string, packet any) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := deref(reflect.ValueOf(packet))
	if !val.IsValid() || val.Kind() != reflect.Struct {
		l.Log(ctx, slog.LevelWarn, name+" not available")
		return
	}
	l.Log(ctx, slog.LevelDebug, name, fieldAttrs(val)...)
}

func fieldAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		attrs = append(attrs, fieldAttr(f.Name, deref(val.Field(i)))...)
	}
	return attrs
}

func fieldAttr(field string, val reflect.Value) []slog.Attr {
	if !val.IsValid() || val.IsZero() {
		return nil
	}

	name := strcase.ToSnake(field)
	switch field {
	case "Properties":
		if val.Kind() == reflect.Struct {
			return fieldAttrs(val)
		}
	case "QoS":
		name = "qos"
	case "Payload":
		return []slog.Attr{slog.Int("payload_size", val.Len())}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.String(name, string(v))}
	case paho.UserProperties:
		group := make([]any, 0, len(v))
		for _, p := range v {
			group = append(group, slog.String(p.Key, p.Value))
		}
		return []slog.Attr{slog.Group(name, group...)}
	case []paho.SubscribeOptions:
		if len(v) > 0 {
			return fieldAttrs(reflect.ValueOf(v[0]))
		}
		return nil
	}

	if val.Kind() == reflect.Struct {
		nested := fieldAttrs(val)
		if len(nested) == 0 {
			return nil
		}
		group := make([]any, len(nested))
		for i, a := range nested {
			group[i] = a
		}
		return []slog.Attr{slog.Group(name, group...)}
	}
	return []slog.Attr{slog.Any(name, val.Interface())}
}

func deref(val reflect.Value) reflect.Value {
	for val.IsValid() &&
		(val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface) {
		if val.IsNil() {
			return reflect.Value{}
		}
		val = val.Elem()
	}
	return val
}
