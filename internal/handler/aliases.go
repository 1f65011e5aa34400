package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/service"
)

// Field aliases accepted at the request boundary. The first non-null key of a
// list wins.
var (
	aliasSectorID      = []string{"setorId", "setor_id", "setorID", "sectorId", "sector_id"}
	aliasSectorName    = []string{"setorNome", "setor_nome", "setor", "nomeSetor", "nome_setor", "sectorName", "sector_name"}
	aliasEmployeeID    = []string{"funcionarioId", "funcionario_id", "usuarioId", "usuario_id", "employeeId", "employee_id"}
	aliasEmployeeEmail = []string{"funcionarioEmail", "funcionario_email", "email", "employeeEmail"}
	aliasEmployeeName  = []string{"funcionarioNome", "funcionario_nome", "nome", "usuarioNome", "usuario_nome", "employeeName"}
	aliasPeriod        = []string{"periodo", "competencia", "mes", "period"}
	aliasItems         = []string{"valores", "itens", "items"}

	aliasItemID     = []string{"indicadorId", "indicador_id", "indicatorId", "id"}
	aliasItemCode   = []string{"indicadorCodigo", "indicador_codigo", "indicatorCode", "codigo", "code"}
	aliasItemName   = []string{"indicadorNome", "indicador_nome", "indicatorName", "nome", "name"}
	aliasItemType   = []string{"tipo", "type"}
	aliasItemUnit   = []string{"unidade", "unit"}
	aliasItemTarget = []string{"meta", "target"}
	aliasItemValue  = []string{"valor", "value"}

	aliasReason     = []string{"motivo", "reason"}
	aliasSecret     = []string{"senha", "password", "secret"}
	aliasLoginEmail = []string{"email", "user", "usuario", "username"}

	// Administration payloads.
	aliasName        = []string{"nome", "name"}
	aliasActive      = []string{"ativo", "active"}
	aliasLevel       = []string{"nivel", "level"}
	aliasResponsible = []string{"responsavelId", "responsavel_id", "responsibleId", "responsible_id"}
	aliasStatus      = []string{"status"}
)

const maxBodyBytes = 1 << 20

// payload is a decoded JSON object read through alias lists.
type payload map[string]any

func decodeBody(w http.ResponseWriter, r *http.Request) (payload, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return payload{}, nil
		}
		return nil, errors.InvalidInput("body", "invalid JSON body")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.InvalidInput("body", "request body must be a JSON object")
	}
	return payload(obj), nil
}

func queryPayload(q url.Values) payload {
	p := payload{}
	for k, v := range q {
		if len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			p[k] = v[0]
		}
	}
	return p
}

// first returns the first non-null value among aliases.
func (p payload) first(aliases []string) (any, bool) {
	for _, k := range aliases {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// present reports whether any alias key exists, even with a null value.
func (p payload) present(aliases []string) bool {
	for _, k := range aliases {
		if _, ok := p[k]; ok {
			return true
		}
	}
	return false
}

func (p payload) str(aliases []string) string {
	v, ok := p.first(aliases)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

func (p payload) optStr(aliases []string) *string {
	v, ok := p.first(aliases)
	if !ok {
		return nil
	}
	s := stringify(v)
	return &s
}

func (p payload) id(field string, aliases []string) (*int64, error) {
	v, ok := p.first(aliases)
	if !ok {
		return nil, nil
	}
	return parseID(field, v)
}

func (p payload) integer(field string, aliases []string) (*int, error) {
	id, err := p.id(field, aliases)
	if err != nil || id == nil {
		return nil, err
	}
	n := int(*id)
	return &n, nil
}

func (p payload) boolean(field string, aliases []string) (*bool, error) {
	v, ok := p.first(aliases)
	if !ok {
		return nil, nil
	}
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case json.Number:
		b = t.String() != "0"
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, errors.InvalidInput(field, fmt.Sprintf("%s must be a boolean", field))
		}
		b = parsed
	default:
		return nil, errors.InvalidInput(field, fmt.Sprintf("%s must be a boolean", field))
	}
	return &b, nil
}

// parseID accepts JSON numbers and numeric strings.
func parseID(field string, v any) (*int64, error) {
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(t)
		if raw == "" {
			return nil, nil
		}
	case float64:
		raw = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil, errors.InvalidInput(field, fmt.Sprintf("%s must be a number", field))
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
		return nil, errors.InvalidInput(field, fmt.Sprintf("%s must be an integer", field))
	}
	n := int64(f)
	return &n, nil
}

// stringify renders a JSON value the way it is stored: numbers keep their
// literal form, so 87.5 becomes "87.5".
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// valuesRequest maps a save or commit payload onto the workflow request.
// Items that are not objects, or carry neither an id nor a code, are skipped.
func valuesRequest(p payload) (*service.ValuesRequest, error) {
	req := &service.ValuesRequest{}

	sectorID, err := p.id("setorId", aliasSectorID)
	if err != nil {
		return nil, err
	}
	req.Sector = service.SectorRef{ID: sectorID, Name: p.str(aliasSectorName)}
	if req.Sector.ID == nil && req.Sector.Name == "" {
		return nil, errors.InvalidInput("setorId", "sector reference is required")
	}

	employeeID, err := p.id("funcionarioId", aliasEmployeeID)
	if err != nil {
		return nil, err
	}
	req.Employee = service.EmployeeRef{
		ID:    employeeID,
		Email: p.str(aliasEmployeeEmail),
		Name:  p.str(aliasEmployeeName),
	}
	if req.Employee.ID == nil && req.Employee.Email == "" && req.Employee.Name == "" {
		return nil, errors.InvalidInput("funcionarioEmail", "employee reference is required")
	}

	req.Period = p.str(aliasPeriod)
	if req.Period == "" {
		return nil, errors.InvalidInput("periodo", "period is required")
	}

	rawItems, _ := p.first(aliasItems)
	list, ok := rawItems.([]any)
	if !ok {
		return nil, errors.InvalidInput("valores", "items must be an array")
	}

	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		item := payload(obj)
		id, err := item.id("indicadorId", aliasItemID)
		if err != nil {
			return nil, err
		}
		code := item.str(aliasItemCode)
		if id == nil && code == "" {
			continue
		}
		req.Items = append(req.Items, service.ItemInput{
			Indicator: service.IndicatorRef{
				ID:     id,
				Code:   code,
				Name:   item.str(aliasItemName),
				Type:   item.optStr(aliasItemType),
				Unit:   item.optStr(aliasItemUnit),
				Target: item.optStr(aliasItemTarget),
			},
			Value: item.optStr(aliasItemValue),
		})
	}
	return req, nil
}
