// Copyright 2026 PaaSTA Tools Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package autoscaling

import (
	"fmt"
	"strconv"
	"strings"
)

func paramString(params map[string]any, key, fallback string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// paramFloat accepts the numeric shapes yaml decoding produces.
func paramFloat(params map[string]any, key string) (float64, error) {
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("autoscaling param %s: %w", key, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("autoscaling param %s is not set", key)
	default:
		return 0, fmt.Errorf("autoscaling param %s has unsupported type %T", key, v)
	}
}
