/*
Copyright 2022 The Nerfstudio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package msgpack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal(t *testing.T) {
	t.Parallel()

	in := map[string][]float64{
		"fields":  {0.25, -1, 3e10},
		"cameras": {0, 0.5},
	}

	b, err := Marshal(in)
	require.NoError(t, err)

	out := map[string][]float64{}
	require.NoError(t, Unmarshal(b, &out))
	require.Equal(t, in, out)
}

func TestUnmarshalToInterfaceStringMaps(t *testing.T) {
	t.Parallel()

	b, err := Marshal(map[string]interface{}{
		"outer": map[string]interface{}{
			"inner": "value",
		},
	})
	require.NoError(t, err)

	obj, err := UnmarshalToInterface(b)
	require.NoError(t, err)

	outer, ok := obj.(map[string]interface{})["outer"].(map[string]interface{})
	require.True(t, ok, "nested maps must decode with string keys")
	require.Equal(t, "value", outer["inner"])
}

func TestUnmarshalGarbage(t *testing.T) {
	t.Parallel()

	out := struct {
		A int `codec:"a"`
	}{}
	err := Unmarshal([]byte{0xc1}, &out) // 0xc1 is never used by msgpack
	require.Error(t, err)
}
