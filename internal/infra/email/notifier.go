package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, to, jobID, reference, stage, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	err := smtp.SendMail(addr, nil, n.from, []string{to}, buildFailureMessage(n.from, to, jobID, reference, stage, errorMsg))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", to),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", to),
		zap.String("job_id", jobID),
	)
	return nil
}

func buildFailureMessage(from, to, jobID, reference, stage, errorMsg string) []byte {
	if stage == "" {
		stage = "unknown"
	}
	subject := fmt.Sprintf("FIAP X - Dataset Job Failed [Job %s]", jobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Your dataset preparation job has failed and will not be retried.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Input: %s\r\n"+
			"Stage: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Fix the input and submit the job again.\r\n\r\n"+
			"-- FIAP X Dataset Service",
		jobID, reference, stage, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
