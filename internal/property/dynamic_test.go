package property

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Map(t *testing.T) {
	settings := map[string]interface{}{
		"timeout": 30,
		"host":    "localhost",
		"ssl":     nil,
	}

	descriptors := NewExtractor().Extract(settings, nil)
	assert.Equal(t, []string{"host", "ssl", "timeout"}, ids(descriptors))

	timeout := Find(descriptors, "timeout")
	require.NotNil(t, timeout)
	assert.Equal(t, TypeInt, timeout.DataType)

	v, err := timeout.Value(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	require.NoError(t, timeout.SetValue(settings, "45"))
	assert.Equal(t, 45, settings["timeout"])

	ssl := Find(descriptors, "ssl")
	v, err = ssl.Value(context.Background(), settings)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, ssl.SetValue(settings, true))
	assert.Equal(t, true, settings["ssl"])
}

func TestExtract_Slice(t *testing.T) {
	hosts := []string{"a", "b", "c"}

	descriptors := NewExtractor().Extract(hosts, nil)
	require.Len(t, descriptors, 3)
	assert.Equal(t, []string{"0", "1", "2"}, ids(descriptors))
	assert.Equal(t, "[1]", descriptors[1].DisplayName)
	assert.True(t, descriptors[1].CanSet())

	require.NoError(t, descriptors[1].SetValue(hosts, "z"))
	assert.Equal(t, []string{"a", "z", "c"}, hosts)

	assert.Equal(t, "[3]", EditableValue(hosts))
}

func TestExtract_ArrayIsReadOnly(t *testing.T) {
	descriptors := NewExtractor().Extract([2]int{1, 2}, nil)
	require.Len(t, descriptors, 2)
	assert.False(t, descriptors[0].CanSet())
	assert.False(t, descriptors[0].Editable)
}

func TestEditableValue(t *testing.T) {
	d := &testDriver{}
	assert.Same(t, d, EditableValue(d))
	assert.Nil(t, EditableValue(nil))
	assert.Equal(t, "[0]", EditableValue([]int{}))
}
