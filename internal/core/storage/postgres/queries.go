package postgres

const (
	querySaveAnalysis = `
		INSERT INTO ndvi_analyses (
			id, farm_id, tiff_url, png_url,
			mean_ndvi, min_ndvi, max_ndvi, std_ndvi,
			status, satellite_source, scene_date, cloud_cover, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	queryListAnalyses = `
		SELECT id, farm_id, tiff_url, png_url,
		       mean_ndvi, min_ndvi, max_ndvi, std_ndvi,
		       status, satellite_source, scene_date, cloud_cover, created_at
		FROM ndvi_analyses
		WHERE farm_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	queryGetFarm = `
		SELECT id, owner_id, name, boundary, area_acres, created_at
		FROM farms
		WHERE id = $1 AND owner_id = $2
	`

	queryListFarms = `
		SELECT id, owner_id, name, boundary, area_acres, created_at
		FROM farms
		ORDER BY created_at ASC
	`

	queryTopTwoAnalyses = `
		SELECT id, farm_id, tiff_url, png_url,
		       mean_ndvi, min_ndvi, max_ndvi, std_ndvi,
		       status, satellite_source, scene_date, cloud_cover, created_at
		FROM ndvi_analyses
		WHERE farm_id = $1
		ORDER BY created_at DESC
		LIMIT 2
	`

	queryInsertAlert = `
		INSERT INTO alerts (id, farm_id, alert_type, severity, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	queryListAlerts = `
		SELECT id, farm_id, alert_type, severity, message, is_read, created_at
		FROM alerts
		WHERE farm_id = $1
		ORDER BY created_at DESC
	`

	queryMarkAlertRead = `UPDATE alerts SET is_read = TRUE WHERE id = $1`

	queryDeleteAlert = `DELETE FROM alerts WHERE id = $1`
)
