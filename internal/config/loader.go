package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// ConfigFiles are the base names read from the config directory, each as
// <name>.yaml or <name>.json.
var ConfigFiles = []string{"signalling", "webrtc", "log", "status"}

// LoadAppConfig reads dir over the defaults. An empty dir yields the defaults.
func LoadAppConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if dir == "" {
		return &cfg, nil
	}

	var rawSignalling RawSignallingConfig
	if err := loadFileInto(dir, "signalling", &rawSignalling); err != nil {
		return nil, err
	}
	parsedSignalling, err := rawSignalling.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Signalling, parsedSignalling)

	var rawWebRTC RawWebRTCConfig
	if err := loadFileInto(dir, "webrtc", &rawWebRTC); err != nil {
		return nil, err
	}
	parsedWebRTC, err := rawWebRTC.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.WebRTC, parsedWebRTC)

	var rawLog RawLogConfig
	if err := loadFileInto(dir, "log", &rawLog); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Log, rawLog.ToDomain())

	var rawStatus RawStatusConfig
	if err := loadFileInto(dir, "status", &rawStatus); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Status, rawStatus.ToDomain())

	return &cfg, nil
}

type fileDecoder struct {
	ext    string
	decode func(r io.Reader, v any) error
}

// configDecoders are tried in order; the first existing file wins.
var configDecoders = []fileDecoder{
	{ext: ".yaml", decode: func(r io.Reader, v any) error { return yaml.NewDecoder(r).Decode(v) }},
	{ext: ".yml", decode: func(r io.Reader, v any) error { return yaml.NewDecoder(r).Decode(v) }},
	{ext: ".json", decode: func(r io.Reader, v any) error { return json.NewDecoder(r).Decode(v) }},
}

func loadFileInto(dir, name string, target any) error {
	for _, d := range configDecoders {
		path := filepath.Join(dir, name+d.ext)
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		err = d.decode(f, target)
		_ = f.Close()
		if errors.Is(err, io.EOF) {
			slog.Warn("config file is empty, using defaults", "file", path)
			return nil
		} else if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		slog.Debug("config file loaded", "file", path)
		return nil
	}
	return nil
}

func mergeInto(dst, src interface{}) {
	dstVal := reflect.ValueOf(dst).Elem()
	srcVal := reflect.ValueOf(src)

	mergeValues(dstVal, srcVal)
}

func mergeValues(dstVal, srcVal reflect.Value) {
	for i := 0; i < srcVal.NumField(); i++ {
		srcField := srcVal.Field(i)
		dstField := dstVal.Field(i)

		switch srcField.Kind() {
		case reflect.Struct:
			mergeValues(dstField, srcField)
		case reflect.Slice:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Pointer:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}
