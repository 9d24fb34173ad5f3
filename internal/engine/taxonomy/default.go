package taxonomy

import "github.com/hejijunhao/statusreport/internal/model"

// Library returns the built-in keyword groups in their fixed order. The
// heuristic generator keeps a group only when at least one incident matches.
func Library() []model.Category {
	groups := []model.Category{
		{
			ID:          "ingestion-processing-delay",
			Name:        "Ingestion/Processing Delays",
			Description: "Delayed data ingestion, queue backlogs, lagging background processing",
			Keywords:    []string{"delay", "delayed", "delays", "backlog", "queue", "ingestion", "processing", "lag"},
		},
		{
			ID:          "authentication-authorization",
			Name:        "Authentication/Authorization",
			Description: "Login failures, SSO problems, token or permission errors",
			Keywords:    []string{"auth", "authentication", "login", "log in", "sso", "saml", "oauth", "permission", "access denied", "token", "2fa"},
		},
		{
			ID:          "network-connectivity",
			Name:        "Network/Connectivity Issues",
			Description: "Network outages, connectivity problems, routing issues, DNS failures",
			Keywords:    []string{"network", "connectivity", "dns", "routing", "packet loss", "connection", "connections", "cdn"},
		},
		{
			ID:          "ui-dashboard",
			Name:        "UI/Dashboard",
			Description: "Dashboard, console or web application rendering and loading problems",
			Keywords:    []string{"dashboard", "ui", "web app", "console", "page load", "interface", "website"},
		},
		{
			ID:          "third-party-dependency",
			Name:        "Third-Party Dependencies",
			Description: "Issues with external services, vendor outages, integration failures",
			Keywords:    []string{"third-party", "vendor", "external", "integration", "upstream"},
		},
		{
			ID:          "database-storage",
			Name:        "Database/Storage Issues",
			Description: "Database outages, connection failures, storage system issues, data access problems",
			Keywords:    []string{"database", "db", "postgres", "mysql", "mongodb", "redis", "storage", "disk", "replica", "connection pool"},
		},
		{
			ID:          "api-service-degradation",
			Name:        "API/Service Degradation",
			Description: "API errors, elevated error rates, timeouts and partial outages",
			Keywords:    []string{"api", "degraded", "error rate", "error rates", "5xx", "errors", "timeout", "timeouts", "elevated"},
		},
		{
			ID:          "deployment-release",
			Name:        "Deployment/Release Issues",
			Description: "Deployment failures, release rollbacks, configuration changes causing issues",
			Keywords:    []string{"deploy", "deployment", "release", "rollback", "rolled back", "config", "configuration", "migration"},
		},
		{
			ID:          "infrastructure-cloud",
			Name:        "Infrastructure/Cloud Provider",
			Description: "Cloud provider issues, infrastructure failures, compute problems",
			Keywords:    []string{"aws", "gcp", "azure", "cloud", "infrastructure", "server", "servers", "region", "data center", "container"},
		},
		{
			ID:          "performance-capacity",
			Name:        "Performance/Capacity",
			Description: "Performance degradation, capacity limits, resource exhaustion",
			Keywords:    []string{"performance", "capacity", "scaling", "load", "cpu", "memory", "throughput", "slow", "latency"},
		},
		{
			ID:          "scheduled-maintenance",
			Name:        "Scheduled Maintenance",
			Description: "Planned maintenance windows, scheduled upgrades, announced downtime",
			Keywords:    []string{"maintenance", "scheduled", "planned", "upgrade"},
		},
		{
			ID:          "notifications-email",
			Name:        "Notifications/Email",
			Description: "Email, SMS, webhook and notification delivery problems",
			Keywords:    []string{"email", "emails", "notification", "notifications", "sms", "webhook", "webhooks"},
		},
		{
			ID:          "security",
			Name:        "Security",
			Description: "Security incidents, attacks, vulnerabilities and unauthorized access",
			Keywords:    []string{"security", "vulnerability", "breach", "ddos", "attack", "malicious", "unauthorized"},
		},
	}
	for i := range groups {
		groups[i].Method = model.MethodHeuristic
	}
	return groups
}
