package openapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tech-arch1tect/crmauth/apperror"
)

type RouteBuilder struct {
	openapi   *OpenAPI
	method    string
	path      string
	operation *openapi3.Operation
}

func (rb *RouteBuilder) autoExtractPathParams() {
	for _, part := range strings.Split(rb.path, "/") {
		if name, ok := strings.CutPrefix(part, ":"); ok && name != "" {
			param := rb.findOrCreateParam(name, openapi3.ParameterInPath)
			param.Required = true
		}
	}
}

func (rb *RouteBuilder) Summary(summary string) *RouteBuilder {
	rb.operation.Summary = summary
	return rb
}

func (rb *RouteBuilder) Description(description string) *RouteBuilder {
	rb.operation.Description = description
	return rb
}

func (rb *RouteBuilder) OperationID(id string) *RouteBuilder {
	rb.operation.OperationID = id
	return rb
}

func (rb *RouteBuilder) Tags(tags ...string) *RouteBuilder {
	rb.operation.Tags = append(rb.operation.Tags, tags...)
	return rb
}

func (rb *RouteBuilder) PathParam(name, description string) *RouteBuilder {
	param := rb.findOrCreateParam(name, openapi3.ParameterInPath)
	param.Description = description
	param.Required = true
	return rb
}

func (rb *RouteBuilder) findOrCreateParam(name, in string) *openapi3.Parameter {
	for _, p := range rb.operation.Parameters {
		if p.Value != nil && p.Value.Name == name && p.Value.In == in {
			return p.Value
		}
	}

	param := &openapi3.Parameter{
		Name:   name,
		In:     in,
		Schema: &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
	}
	rb.operation.Parameters = append(rb.operation.Parameters, &openapi3.ParameterRef{Value: param})
	return param
}

func (rb *RouteBuilder) Body(example any, description string) *RouteBuilder {
	rb.operation.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(true).
			WithJSONSchemaRef(rb.openapi.generateSchema(example)),
	}
	return rb
}

// Response documents a success response. A non-nil data is wrapped in the
// standard {success, message, data} envelope.
func (rb *RouteBuilder) Response(statusCode int, data any, description string) *RouteBuilder {
	envelope := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("message", openapi3.NewStringSchema())
	envelope.Required = []string{"success"}
	if data != nil {
		envelope.Properties["data"] = rb.openapi.generateSchema(data)
	}

	rb.setResponse(statusCode, description, &openapi3.SchemaRef{Value: envelope})
	return rb
}

// ResponseWithCookie documents a success response that also sets the refresh cookie.
func (rb *RouteBuilder) ResponseWithCookie(statusCode int, data any, description string) *RouteBuilder {
	rb.Response(statusCode, data, description)

	resp := rb.operation.Responses.Status(statusCode)
	resp.Value.Headers = openapi3.Headers{
		"Set-Cookie": &openapi3.HeaderRef{Value: &openapi3.Header{Parameter: openapi3.Parameter{
			Description: "HttpOnly refresh token cookie",
			Schema:      &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		}}},
	}
	return rb
}

// Errors documents failure responses, all rendered as apperror.ErrorResponse.
// Codes sharing a status are listed together in its description.
func (rb *RouteBuilder) Errors(failures ...Failure) *RouteBuilder {
	byStatus := make(map[int][]string)
	var order []int
	for _, f := range failures {
		if _, seen := byStatus[f.Status]; !seen {
			order = append(order, f.Status)
		}
		byStatus[f.Status] = append(byStatus[f.Status], f.Code)
	}

	for _, status := range order {
		description := http.StatusText(status) + ": " + strings.Join(byStatus[status], ", ")
		rb.setResponse(status, description, rb.openapi.generateSchema(apperror.ErrorResponse{}))
	}
	return rb
}

// Failure names one documented error outcome.
type Failure struct {
	Status int
	Code   string
}

func Fail(status int, code string) Failure {
	return Failure{Status: status, Code: code}
}

func (rb *RouteBuilder) setResponse(statusCode int, description string, schema *openapi3.SchemaRef) {
	resp := openapi3.NewResponse().WithDescription(description)
	if schema != nil {
		resp.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	rb.operation.Responses.Set(strconv.Itoa(statusCode), &openapi3.ResponseRef{Value: resp})
}

// Security marks the operation as accepting any one of schemes.
func (rb *RouteBuilder) Security(schemes ...string) *RouteBuilder {
	if rb.operation.Security == nil {
		rb.operation.Security = openapi3.NewSecurityRequirements()
	}
	for _, scheme := range schemes {
		rb.operation.Security.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	return rb
}

func (rb *RouteBuilder) NoSecurity() *RouteBuilder {
	rb.operation.Security = openapi3.NewSecurityRequirements()
	return rb
}

func (rb *RouteBuilder) Build() {
	rb.openapi.addOperation(rb.method, rb.path, rb.operation)
}
