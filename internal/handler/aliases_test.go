package handler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

func decode(t *testing.T, raw string) payload {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var p map[string]any
	require.NoError(t, dec.Decode(&p))
	return payload(p)
}

func TestValuesRequestAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"portuguese camel", `{"setorId": 7, "funcionarioEmail": "ana@empresa.com", "periodo": "2026-02", "valores": [{"indicadorCodigo": "OEE", "valor": 87.5}]}`},
		{"snake case", `{"setor_id": "7", "funcionario_email": "ana@empresa.com", "competencia": "2026-02", "itens": [{"indicador_codigo": "OEE", "valor": "87.5"}]}`},
		{"english", `{"sectorId": 7, "employeeEmail": "ana@empresa.com", "period": "2026-02", "items": [{"indicatorCode": "OEE", "value": 87.5}]}`},
		{"null alias falls through", `{"setorId": null, "sector_id": 7, "email": "ana@empresa.com", "mes": "2026-02", "valores": [{"codigo": null, "code": "OEE", "value": 87.5}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := valuesRequest(decode(t, tt.raw))
			require.NoError(t, err)
			require.NotNil(t, req.Sector.ID)
			assert.Equal(t, int64(7), *req.Sector.ID)
			assert.Equal(t, "ana@empresa.com", req.Employee.Email)
			assert.Equal(t, "2026-02", req.Period)
			require.Len(t, req.Items, 1)
			assert.Equal(t, "OEE", req.Items[0].Indicator.Code)
			require.NotNil(t, req.Items[0].Value)
			assert.Equal(t, "87.5", *req.Items[0].Value)
		})
	}
}

func TestValuesRequestItems(t *testing.T) {
	req, err := valuesRequest(decode(t, `{
		"setorNome": "Logistics",
		"funcionarioNome": "Ana",
		"periodo": "2026-02-01",
		"valores": [
			{"indicadorId": "12", "valor": null},
			{"id": 13, "valor": true, "tipo": "percent", "unidade": "%", "meta": 95},
			{"nome": "no id or code", "valor": 1},
			42,
			"string item"
		]
	}`))
	require.NoError(t, err)

	assert.Nil(t, req.Sector.ID)
	assert.Equal(t, "Logistics", req.Sector.Name)
	assert.Equal(t, "Ana", req.Employee.Name)
	require.Len(t, req.Items, 2)

	assert.Equal(t, int64(12), *req.Items[0].Indicator.ID)
	assert.Nil(t, req.Items[0].Value)

	second := req.Items[1]
	assert.Equal(t, int64(13), *second.Indicator.ID)
	assert.Equal(t, "true", *second.Value)
	assert.Equal(t, "percent", *second.Indicator.Type)
	assert.Equal(t, "%", *second.Indicator.Unit)
	assert.Equal(t, "95", *second.Indicator.Target)
}

func TestValuesRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"no sector", `{"email": "a@b.c", "periodo": "2026-02", "valores": []}`, "setorId"},
		{"bad sector id", `{"setorId": "abc", "email": "a@b.c", "periodo": "2026-02", "valores": []}`, "setorId"},
		{"fractional sector id", `{"setorId": 7.5, "email": "a@b.c", "periodo": "2026-02", "valores": []}`, "setorId"},
		{"no employee", `{"setorId": 7, "periodo": "2026-02", "valores": []}`, "funcionarioEmail"},
		{"no period", `{"setorId": 7, "email": "a@b.c", "valores": []}`, "periodo"},
		{"items missing", `{"setorId": 7, "email": "a@b.c", "periodo": "2026-02"}`, "valores"},
		{"items object", `{"setorId": 7, "email": "a@b.c", "periodo": "2026-02", "valores": {"OEE": 1}}`, "valores"},
		{"bad item id", `{"setorId": 7, "email": "a@b.c", "periodo": "2026-02", "valores": [{"id": [1]}]}`, "indicadorId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := valuesRequest(decode(t, tt.raw))
			require.Error(t, err)
			var e *errors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, errors.ErrCodeValidation, e.Code)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      any
		want    *int64
		wantErr bool
	}{
		{in: json.Number("7"), want: idPtr(7)},
		{in: json.Number("7.0"), want: idPtr(7)},
		{in: " 12 ", want: idPtr(12)},
		{in: "", want: nil},
		{in: float64(3), want: idPtr(3)},
		{in: json.Number("1.5"), wantErr: true},
		{in: json.Number("9223372036854775808"), wantErr: true},
		{in: json.Number("1e19"), wantErr: true},
		{in: float64(1 << 63), wantErr: true},
		{in: "x", wantErr: true},
		{in: true, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseID("id", tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestBooleanAlias(t *testing.T) {
	p := decode(t, `{"ativo": "false", "active": true, "flag": 1, "bad": "maybe"}`)

	got, err := p.boolean("ativo", aliasActive)
	require.NoError(t, err)
	assert.False(t, *got)

	got, err = p.boolean("flag", []string{"flag"})
	require.NoError(t, err)
	assert.True(t, *got)

	got, err = p.boolean("missing", []string{"missing"})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = p.boolean("bad", []string{"bad"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestPresentDistinguishesNull(t *testing.T) {
	p := decode(t, `{"responsavelId": null}`)
	assert.True(t, p.present(aliasResponsible))
	_, ok := p.first(aliasResponsible)
	assert.False(t, ok)
	assert.False(t, p.present(aliasSectorID))
}
