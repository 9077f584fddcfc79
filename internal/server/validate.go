package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	schemaBase   = "https://tada.local/schema/"
	maxBodyBytes = 1 << 20

	msgTitleRequired  = "Title is required and must be a string"
	msgTitleEmpty     = "Title must be a non-empty string"
	msgInvalidPrio    = "Invalid priority value. Must be LOW, MEDIUM, or HIGH"
	msgInvalidDueDate = "Invalid due date format"
	msgNotObject      = "Request body must be a JSON object"
)

// schemas holds the compiled request body schemas.
type schemas struct {
	create *jsonschema.Schema
	update *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, name := range []string{"todo_create.json", "todo_update.json"} {
		raw, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(schemaBase+name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	create, err := compiler.Compile(schemaBase + "todo_create.json")
	if err != nil {
		return nil, fmt.Errorf("compile create schema: %w", err)
	}
	update, err := compiler.Compile(schemaBase + "todo_update.json")
	if err != nil {
		return nil, fmt.Errorf("compile update schema: %w", err)
	}
	return &schemas{create: create, update: update}, nil
}

// decodeObject reads a JSON object body. Numbers stay json.Number so the
// schema validator sees them unchanged.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperr.Validation(msgNotObject)
		}
		return nil, apperr.Wrap(apperr.KindValidation, "Invalid JSON body", err)
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, apperr.Validation(msgNotObject)
	}
	return obj, nil
}

func validateShape(schema *jsonschema.Schema, body map[string]any) error {
	err := schema.Validate(body)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate body: %w", err)
	}
	var msgs []string
	collectSchemaErrors(ve, &msgs)
	if len(msgs) == 0 {
		msgs = append(msgs, ve.Message)
	}
	return apperr.Validation("Invalid request body: " + strings.Join(msgs, "; "))
}

func collectSchemaErrors(err *jsonschema.ValidationError, out *[]string) {
	if err == nil {
		return
	}
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(err.InstanceLocation, "/")
		if field == "" {
			*out = append(*out, err.Message)
		} else {
			*out = append(*out, field+": "+err.Message)
		}
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}

// priorityField reads an optional priority. Explicit null counts as absent
// only when allowNull is set.
func priorityField(body map[string]any, allowNull bool) (*model.Priority, error) {
	raw, ok := body["priority"]
	if !ok || (raw == nil && allowNull) {
		return nil, nil
	}
	s, isString := raw.(string)
	p := model.Priority(s)
	if !isString || !p.Valid() {
		return nil, apperr.Validation(msgInvalidPrio)
	}
	return &p, nil
}

// dueDateField reads an optional due date; null is returned as an explicit
// null.
func dueDateField(body map[string]any) (model.Nullable[time.Time], error) {
	raw, ok := body["dueDate"]
	if !ok {
		return model.Nullable[time.Time]{}, nil
	}
	if raw == nil {
		return model.Null[time.Time](), nil
	}
	s, isString := raw.(string)
	if !isString {
		return model.Nullable[time.Time]{}, apperr.Validation(msgInvalidDueDate)
	}
	t, parsed := model.ParseDueDate(s)
	if !parsed {
		return model.Nullable[time.Time]{}, apperr.Validation(msgInvalidDueDate)
	}
	return model.Some(t), nil
}

func descriptionField(body map[string]any) model.Nullable[string] {
	raw, ok := body["description"]
	if !ok {
		return model.Nullable[string]{}
	}
	if s, isString := raw.(string); isString {
		return model.Some(s)
	}
	return model.Null[string]()
}

// parseCreate turns a create body into a NewTodo. Value rules come first
// so each failure carries its own message; the schema catches the rest.
func (s *schemas) parseCreate(body map[string]any) (model.NewTodo, error) {
	title, ok := body["title"].(string)
	if !ok {
		return model.NewTodo{}, apperr.Validation(msgTitleRequired)
	}
	if strings.TrimSpace(title) == "" {
		return model.NewTodo{}, apperr.Validation(msgTitleEmpty)
	}
	prio, err := priorityField(body, true)
	if err != nil {
		return model.NewTodo{}, err
	}
	due, err := dueDateField(body)
	if err != nil {
		return model.NewTodo{}, err
	}
	if err := validateShape(s.create, body); err != nil {
		return model.NewTodo{}, err
	}

	n := model.NewTodo{
		Title:       title,
		Description: descriptionField(body).Ptr(),
		DueDate:     due.Ptr(),
	}
	if c, ok := body["completed"].(bool); ok {
		n.Completed = c
	}
	if prio != nil {
		n.Priority = *prio
	}
	return n, nil
}

// parseUpdate turns an update body into a TodoPatch.
func (s *schemas) parseUpdate(body map[string]any) (model.TodoPatch, error) {
	var p model.TodoPatch
	if raw, ok := body["title"]; ok {
		title, isString := raw.(string)
		if !isString || strings.TrimSpace(title) == "" {
			return model.TodoPatch{}, apperr.Validation(msgTitleEmpty)
		}
		p.Title = &title
	}
	prio, err := priorityField(body, false)
	if err != nil {
		return model.TodoPatch{}, err
	}
	p.Priority = prio
	if p.DueDate, err = dueDateField(body); err != nil {
		return model.TodoPatch{}, err
	}
	if err := validateShape(s.update, body); err != nil {
		return model.TodoPatch{}, err
	}

	p.Description = descriptionField(body)
	if c, ok := body["completed"].(bool); ok {
		p.Completed = &c
	}
	return p, nil
}
