package openapi

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/require"
)

func loadTestDoc(t *testing.T, spec string) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(spec))
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	return doc
}

func TestDeriveOperationsOrderAndNames(t *testing.T) {
	doc := loadTestDoc(t, petstoreSpec)

	ops, err := DeriveOperations(doc)
	require.NoError(t, err)
	require.Len(t, ops, 3)

	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	require.Equal(t, []string{"listPets", "createPet", "getPet"}, names)

	require.Equal(t, "GET", ops[0].Method)
	require.Equal(t, "/pets", ops[0].Path)
	require.Equal(t, "List pets", ops[0].Description)
}

func TestDeriveOperationsParams(t *testing.T) {
	doc := loadTestDoc(t, petstoreSpec)

	ops, err := DeriveOperations(doc)
	require.NoError(t, err)

	byName := make(map[string]Operation, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}

	listPets := byName["listPets"]
	require.Len(t, listPets.Params, 1)
	require.Equal(t, "limit", listPets.Params[0].Name)
	require.Equal(t, "query", listPets.Params[0].In)
	require.False(t, listPets.Params[0].Required)
	require.False(t, listPets.HasBody)

	getPet := byName["getPet"]
	require.Len(t, getPet.Params, 1)
	require.Equal(t, "petId", getPet.Params[0].Name)
	require.Equal(t, "path", getPet.Params[0].In)
	require.True(t, getPet.Params[0].Required)

	createPet := byName["createPet"]
	require.True(t, createPet.HasBody)
	require.Empty(t, createPet.Params)
}

func TestDeriveOperationsInputSchema(t *testing.T) {
	doc := loadTestDoc(t, petstoreSpec)

	ops, err := DeriveOperations(doc)
	require.NoError(t, err)

	byName := make(map[string]Operation, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}

	listPets := byName["listPets"].InputSchema
	require.Equal(t, "object", listPets.Type)
	require.Contains(t, listPets.Properties, "limit")
	require.Equal(t, "integer", listPets.Properties["limit"].Type)
	require.Empty(t, listPets.Required)

	getPet := byName["getPet"].InputSchema
	require.Contains(t, getPet.Properties, "petId")
	require.Equal(t, []string{"petId"}, getPet.Required)

	// Object request bodies are flattened into the schema.
	createPet := byName["createPet"].InputSchema
	require.Contains(t, createPet.Properties, "name")
	require.Equal(t, []string{"name"}, createPet.Required)
}

func TestDeriveOperationsSlugWithoutOperationID(t *testing.T) {
	doc := loadTestDoc(t, `{
	  "openapi": "3.0.3",
	  "info": {"title": "NoIDs", "version": "1.0.0"},
	  "paths": {
	    "/v1/reports/{reportId}": {
	      "delete": {
	        "parameters": [
	          {"name": "reportId", "in": "path", "required": true, "schema": {"type": "string"}}
	        ],
	        "responses": {"204": {"description": "deleted"}}
	      }
	    }
	  }
	}`)

	ops, err := DeriveOperations(doc)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, "delete_v1_reports_reportid", ops[0].Name)
}

func TestDeriveOperationsDuplicateNames(t *testing.T) {
	// Not validated: kin-openapi would reject the duplicate operationId
	// before derivation gets a chance to.
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData([]byte(`{
	  "openapi": "3.0.3",
	  "info": {"title": "Dup", "version": "1.0.0"},
	  "paths": {
	    "/a": {"get": {"operationId": "same", "responses": {"200": {"description": "ok"}}}},
	    "/b": {"get": {"operationId": "same", "responses": {"200": {"description": "ok"}}}}
	  }
	}`))
	require.NoError(t, err)

	_, err = DeriveOperations(doc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate tool name")
}

func TestDeriveOperationsEmptyDoc(t *testing.T) {
	doc := loadTestDoc(t, `{
	  "openapi": "3.0.3",
	  "info": {"title": "Empty", "version": "1.0.0"},
	  "paths": {}
	}`)

	ops, err := DeriveOperations(doc)
	require.NoError(t, err)
	require.Empty(t, ops)
}
