package keycase_test

import (
	"errors"
	"testing"

	"github.com/artpar/facturo/pkg/keycase"
)

func TestConvertJSON(t *testing.T) {
	tests := []struct {
		name  string
		namer keycase.Namer
		in    string
		want  string
	}{
		{
			name:  "nested snake to camel",
			namer: keycase.LowerCamel,
			in:    `{"user_name":"Ana","order_items":[{"item_id":1},{"item_id":2}]}`,
			want:  `{"userName":"Ana","orderItems":[{"itemId":1},{"itemId":2}]}`,
		},
		{
			name:  "camel to snake keeps member order",
			namer: keycase.Snake,
			in:    `{"zipCode":"75001","createdAt":"2024-01-01T00:00:00Z","amount":12.50}`,
			want:  `{"zip_code":"75001","created_at":"2024-01-01T00:00:00Z","amount":12.50}`,
		},
		{
			name:  "scalar bytes preserved",
			namer: keycase.LowerCamel,
			in:    `{"big_number":12345678901234567890,"exp_value":1e3,"escaped_text":"a\"bé"}`,
			want:  `{"bigNumber":12345678901234567890,"expValue":1e3,"escapedText":"a\"bé"}`,
		},
		{
			name:  "whitespace dropped",
			namer: keycase.LowerCamel,
			in:    "{ \"line_items\" : [ 1 , 2 ] ,\n \"note_body\" : null }",
			want:  `{"lineItems":[1,2],"noteBody":null}`,
		},
		{
			name:  "top level array",
			namer: keycase.LowerCamel,
			in:    `[{"vat_rate":2000},[],{}]`,
			want:  `[{"vatRate":2000},[],{}]`,
		},
		{
			name:  "top level scalar",
			namer: keycase.LowerCamel,
			in:    ` "user_name" `,
			want:  `"user_name"`,
		},
		{
			name:  "html characters not escaped",
			namer: keycase.Identity,
			in:    `{"a<b":"<tag>"}`,
			want:  `{"a<b":"<tag>"}`,
		},
		{
			name:  "collision keeps first position and last value",
			namer: keycase.LowerCamel,
			in:    `{"userId":1,"total":5,"user_id":2}`,
			want:  `{"userId":2,"total":5}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keycase.ForNamer(tt.namer).ConvertJSON([]byte(tt.in))
			if err != nil {
				t.Fatalf("ConvertJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ConvertJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConvertJSON_Invalid(t *testing.T) {
	in := []byte(`not json {`)
	got, err := keycase.ForNamer(keycase.Snake).ConvertJSON(in)
	if !errors.Is(err, keycase.ErrNotJSON) {
		t.Fatalf("error = %v, want ErrNotJSON", err)
	}
	if string(got) != string(in) {
		t.Errorf("invalid input was modified: %s", got)
	}
}

func TestConvertJSON_CollisionError(t *testing.T) {
	tr := keycase.ForNamer(keycase.LowerCamel, keycase.WithCollisionPolicy(keycase.CollideError))
	got, err := tr.ConvertJSON([]byte(`{"items":[{"unit_price":1,"unitPrice":2}]}`))
	if got != nil {
		t.Errorf("partial output returned: %s", got)
	}
	var ce *keycase.CollisionError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CollisionError", err)
	}
	if ce.Collision.Path != "$.items[0]" || ce.Collision.Target != "unitPrice" {
		t.Errorf("collision = %+v", ce.Collision)
	}
}

func TestConvertJSON_ConverterError(t *testing.T) {
	boom := errors.New("boom")
	tr := keycase.New(func(key string) (string, error) {
		if key == "secret" {
			return "", boom
		}
		return key, nil
	})

	_, err := tr.ConvertJSON([]byte(`{"a":{"secret":1}}`))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func TestConvertJSON_MaxDepth(t *testing.T) {
	tr := keycase.ForNamer(keycase.Snake, keycase.WithMaxDepth(2))
	if _, err := tr.ConvertJSON([]byte(`{"a":{"b":1}}`)); err != nil {
		t.Fatalf("depth 2 error = %v", err)
	}
	_, err := tr.ConvertJSON([]byte(`{"a":{"b":[1]}}`))
	if !errors.Is(err, keycase.ErrTooDeep) {
		t.Fatalf("error = %v, want ErrTooDeep", err)
	}
}
