package repository

// 嵌入关系的 jsonb 表达式，参数是外层表别名上的外键列

func profileEmbed(fk string) string {
	return `(SELECT to_jsonb(u) FROM profiles u WHERE u.id = ` + fk + `)`
}

func clientEmbed(fk string) string {
	return `(SELECT to_jsonb(c) || jsonb_build_object('user', ` + profileEmbed("c.user_id") + `) FROM clients c WHERE c.id = ` + fk + `)`
}

func categoryEmbed(fk string) string {
	return `(SELECT to_jsonb(pc) FROM project_categories pc WHERE pc.id = ` + fk + `)`
}

func projectEmbed(fk string) string {
	return `(SELECT to_jsonb(pr) FROM projects pr WHERE pr.id = ` + fk + `)`
}

func milestonesEmbed(projectID string) string {
	return `COALESCE((SELECT jsonb_agg(to_jsonb(m) ORDER BY m.order_index) FROM project_milestones m WHERE m.project_id = ` + projectID + `), '[]'::jsonb)`
}

func filesEmbed(projectID string) string {
	return `COALESCE((SELECT jsonb_agg(to_jsonb(f) ORDER BY f.upload_date DESC) FROM project_files f WHERE f.project_id = ` + projectID + `), '[]'::jsonb)`
}

func itemsEmbed(invoiceID string) string {
	return `COALESCE((SELECT jsonb_agg(to_jsonb(it) ORDER BY it.order_index) FROM invoice_items it WHERE it.invoice_id = ` + invoiceID + `), '[]'::jsonb)`
}
