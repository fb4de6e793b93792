package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"

	"pricepulse/config"
	"pricepulse/models"

	"gopkg.in/gomail.v2"
)

// PriceAlertEmail is everything a price-drop notification needs
type PriceAlertEmail struct {
	Recipient    string
	ProductName  string
	ProductURL   string
	CurrentPrice float64
	TargetPrice  float64
	ImageURL     string
}

// Subject returns the mail subject line
func (e PriceAlertEmail) Subject() string {
	return fmt.Sprintf("Price Alert! %s is now ₹%.2f!", e.ProductName, e.CurrentPrice)
}

// ShowImage reports whether the image URL is worth embedding
func (e PriceAlertEmail) ShowImage() bool {
	return !models.IsPlaceholder(e.ImageURL) &&
		(strings.HasPrefix(e.ImageURL, "http://") || strings.HasPrefix(e.ImageURL, "https://"))
}

// Sender delivers an assembled message; gomail.Dialer satisfies it
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends price alert mails over SMTP
type EmailNotifier struct {
	cfg    config.SMTP
	sender Sender
}

// NewEmailNotifier creates a notifier dialing cfg.Host:cfg.Port. Port 465 uses implicit TLS.
func NewEmailNotifier(cfg config.SMTP) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

// NewEmailNotifierWithSender creates a notifier that delivers through sender
func NewEmailNotifierWithSender(cfg config.SMTP, sender Sender) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// Send delivers the alert and reports whether the mail went out. Every failure,
// including missing credentials, is logged and reported as false.
func (n *EmailNotifier) Send(ctx context.Context, email PriceAlertEmail) bool {
	if !n.cfg.MailEnabled() {
		log.Printf("❌ SMTP credentials not configured, cannot send alert to %s", email.Recipient)
		return false
	}
	if err := ctx.Err(); err != nil {
		log.Printf("❌ Not sending alert to %s: %v", email.Recipient, err)
		return false
	}

	body, err := RenderPriceAlert(email)
	if err != nil {
		log.Printf("❌ Failed to render alert email: %v", err)
		return false
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", n.cfg.User, n.cfg.FromName)
	m.SetHeader("To", email.Recipient)
	m.SetHeader("Subject", email.Subject())
	m.SetBody("text/html", body)

	if err := n.sender.DialAndSend(m); err != nil {
		log.Printf("❌ Failed to send alert email to %s: %v", email.Recipient, err)
		return false
	}

	log.Printf("📧 Alert email sent to %s for %s", email.Recipient, email.ProductName)
	return true
}

// RenderPriceAlert renders the HTML body of the alert mail
func RenderPriceAlert(email PriceAlertEmail) (string, error) {
	var buf bytes.Buffer
	if err := priceAlertTemplate.Execute(&buf, email); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}

var priceAlertTemplate = template.Must(template.New("price_alert").Parse(`<html>
<head>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 0; background-color: #f4f4f4; color: #333; }
.container { max-width: 600px; margin: 20px auto; padding: 20px; background-color: #ffffff; border: 1px solid #dddddd; border-radius: 8px; }
.header { background-color: #007bff; color: white; padding: 15px; text-align: center; }
.product-image { max-width: 180px; height: auto; border-radius: 6px; margin: 15px auto; display: block; }
.button { display: inline-block; background-color: #28a745; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px; font-weight: bold; }
.footer { font-size: 0.85em; text-align: center; color: #777777; margin-top: 25px; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h2>PricePulse Alert!</h2></div>
  <div class="content">
    <p>Hi there,</p>
    <p>Good news! The price for the product you're tracking, <strong>{{.ProductName}}</strong>, has dropped to <strong>₹{{printf "%.2f" .CurrentPrice}}</strong>.</p>
    <p>This is at or below your target price of ₹{{printf "%.2f" .TargetPrice}}.</p>
    {{if .ShowImage}}<p><img src="{{.ImageURL}}" alt="{{.ProductName}}" class="product-image"></p>{{end}}
    <p style="text-align: center;"><a href="{{.ProductURL}}" class="button">View Product</a></p>
    <p>Happy Shopping!</p>
  </div>
  <div class="footer">
    <p>You are receiving this email because you set a price alert on PricePulse for this product.</p>
  </div>
</div>
</body>
</html>
`))
