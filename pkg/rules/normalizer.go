package rules

// Raw export files are named 基线数据.<tag>_<domain>.csv, one tag per
// cohort. The other-lab extract paginates into suffixed duplicates that
// union into a single canonical table.
func batchFiles(tag string) []FileMapping {
	p := "基线数据." + tag + "_"
	return []FileMapping{
		{Raw: p + "全部诊断.csv", Canonical: FileDiagnosis},
		{Raw: p + "药品类医嘱.csv", Canonical: FileMedicationOrders},
		{Raw: p + "非药品类医嘱.csv", Canonical: FileNonDrugOrders},
		{Raw: p + "生命体征.csv", Canonical: FileVitalSigns},
		{Raw: p + "血糖单.csv", Canonical: FileGlucose},
		{Raw: p + "入院记录.csv", Canonical: FileAdmissionNotes},
		{Raw: p + "糖代谢测定.csv", Canonical: FileLabMetabolic},
		{Raw: p + "住院.csv", Canonical: FileHospitalization},
		{Raw: p + "C反应蛋白检测.csv", Canonical: FileLabCRP},
		{Raw: p + "血常规.csv", Canonical: FileLabHematology},
		{Raw: p + "生化检查.csv", Canonical: FileLabChemistry},
		{
			Raw:       p + "其他检验.csv",
			Canonical: FileOtherLab,
			Variants: []string{
				p + "其他检验_(1).csv",
				p + "其他检验_(2).csv",
				p + "其他检验_(3).csv",
			},
		},
	}
}

func DefaultNormalizer() NormalizerRules {
	return NormalizerRules{
		Cohorts: []CohortSpec{
			{
				Name: "Health",
				Folders: []string{
					"指标数据_基线数据_1家医院_分组1_低血糖预测模型-正常血糖1_2024-04-06 140118_10",
					"指标数据_基线数据_1家医院_分组1_低血糖预测模型-正常血糖2_2024-02-06 183001_21",
					"指标数据_基线数据_1家医院_分组1_低血糖预测模型-正常血糖1_2024-02-05 155459_39",
				},
				Files: batchFiles("test"),
			},
			{
				Name: "HYPO",
				Folders: []string{
					"指标数据_基线数据_1家医院_分组1_低血糖风险预测模型-低血糖_2024-04-06 140331_83",
					"指标数据_基线数据_1家医院_分组1_低血糖风险预测模型-低血糖_2024-02-06 183111_28",
				},
				Files: batchFiles("低血糖"),
			},
		},
		DropColumns: []string{
			"patient_sn", "分组名称", "time_quantum", "时间段", "group_name",
			"test_gender_time_quantum1", "test_出生日期_time_quantum1", "test_death_time_quantum1",
			"test_性别_时间段1", "test_出生日期_时间段1", "test_是否死亡_时间段1",
			"低血糖_gender_time_quantum1", "低血糖_出生日期_time_quantum1", "低血糖_death_time_quantum1",
			"低血糖_性别_时间段1", "低血糖_出生日期_时间段1", "低血糖_是否死亡_时间段1",
		},
		DateExcluded: []string{"birth_date", "admission_date", "discharge_date", "surgery_dates"},
	}
}
