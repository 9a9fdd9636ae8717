// Package render produces the recovery email body for CartRescue.
//
// Rendering is a pure function of the cart contents and the recovery URL so
// it can be unit-tested without any network or store dependency. The output
// is a self-contained inline-styled HTML document with no external scripts,
// suitable for email-client rendering.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/BTreeMap/CartRescue/internal/models"
)

// DefaultSubject is the subject line for recovery emails.
const DefaultSubject = "You left something in your cart"

// Placeholders substituted for missing or malformed item fields.
const (
	placeholderName = "Item"
)

type emailData struct {
	CustomerName string
	Items        []itemData
	Total        string
	RecoveryURL  string
}

type itemData struct {
	Name     string
	Price    string
	Quantity int
	ImageURL string
	HasImage bool
}

var emailTemplate = template.Must(template.New("recovery").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;background-color:#f4f4f4;font-family:Arial,Helvetica,sans-serif;">
  <div style="max-width:600px;margin:0 auto;padding:24px;background-color:#ffffff;">
    <h2 style="color:#333333;margin-top:0;">{{if .CustomerName}}Hi {{.CustomerName}},{{else}}Hi there,{{end}}</h2>
    <p style="color:#555555;font-size:15px;line-height:1.5;">
      You left a few things behind. Your cart is saved and ready whenever you are.
    </p>
    <table style="width:100%;border-collapse:collapse;margin:16px 0;">
      {{range .Items}}
      <tr style="border-bottom:1px solid #eeeeee;">
        <td style="padding:12px 8px;width:72px;">
          {{if .HasImage}}<img src="{{.ImageURL}}" alt="{{.Name}}" width="64" height="64" style="display:block;border:0;object-fit:cover;">{{else}}<div style="width:64px;height:64px;background-color:#eeeeee;"></div>{{end}}
        </td>
        <td style="padding:12px 8px;color:#333333;font-size:14px;">{{.Name}}</td>
        <td style="padding:12px 8px;color:#777777;font-size:14px;text-align:center;">x{{.Quantity}}</td>
        <td style="padding:12px 8px;color:#333333;font-size:14px;text-align:right;">{{.Price}}</td>
      </tr>
      {{end}}
    </table>
    <p style="color:#333333;font-size:15px;text-align:right;"><strong>Total: {{.Total}}</strong></p>
    <div style="text-align:center;margin:24px 0;">
      <a href="{{.RecoveryURL}}" style="display:inline-block;padding:12px 32px;background-color:#2d7ff9;color:#ffffff;text-decoration:none;border-radius:4px;font-size:15px;">Resume your order</a>
    </div>
    <p style="color:#999999;font-size:12px;line-height:1.4;">
      If you already completed your purchase, you can ignore this email.
    </p>
  </div>
</body>
</html>
`))

// RecoveryEmail renders the recovery email body from the cart's line items
// and the recovery URL. Missing item fields are replaced with safe
// placeholders rather than failing the render.
func RecoveryEmail(cart models.AbandonedCart, recoveryURL string) (string, error) {
	data := emailData{
		CustomerName: cart.CustomerName,
		Total:        formatPrice(cart.Total),
		RecoveryURL:  recoveryURL,
	}
	for _, item := range cart.Items {
		data.Items = append(data.Items, normalizeItem(item))
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render recovery email failed: %w", err)
	}
	return buf.String(), nil
}

// normalizeItem substitutes placeholders for empty or malformed fields.
func normalizeItem(item models.CartItem) itemData {
	d := itemData{
		Name:     item.Name,
		Quantity: item.Quantity,
		ImageURL: item.ImageURL,
		HasImage: item.ImageURL != "",
	}
	if d.Name == "" {
		d.Name = placeholderName
	}
	if d.Quantity <= 0 {
		d.Quantity = 1
	}
	if item.UnitPrice > 0 {
		d.Price = formatPrice(item.UnitPrice)
	} else {
		d.Price = "N/A"
	}
	return d
}

func formatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
