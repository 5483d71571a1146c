package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/entrykart/core/access"
)

func TestRollbarLogger_prepare(t *testing.T) {
	l := NewDiscardLogger()
	p := access.Principal{ID: "1", Name: "Root", Email: "root@test.in", Role: access.RoleSuperAdmin}
	err := errors.New("boom")

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "msg only", want: []interface{}{"msg"}},
		{name: "error", args: []interface{}{err}, want: []interface{}{"msg", err}},
		{
			name: "pairs",
			args: []interface{}{"record", "r1", "amount", 1100},
			want: []interface{}{"msg", map[string]interface{}{"record": "r1", "amount": 1100}},
		},
		{
			name: "principal and map",
			args: []interface{}{p, map[string]interface{}{"path": "/v1"}, "dangling"},
			want: []interface{}{"msg", map[string]interface{}{"role": "superadmin", "path": "/v1", "dangling": nil}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.prepare("msg", tt.args))
		})
	}
}
