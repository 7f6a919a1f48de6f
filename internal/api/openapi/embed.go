// Пакет openapi — встроенный OpenAPI 3 контракт Institution Module.
package openapi

import _ "embed"

// Spec — содержимое openapi.yaml.
//
//go:embed openapi.yaml
var Spec []byte
