package rules

// Comorbidity flags extracted from free-text diagnosis names. AND rules
// require every keyword in the same diagnosis; OR rules require any.
func DefaultComorbidities() ComorbidityRules {
	return ComorbidityRules{
		TextColumn: "disease_name",
		Rules: []FeatureRule{
			{
				Name:     "DPVD",
				Display:  "糖尿病周围血管病变",
				FullName: "Diabetic peripheral vascular disease",
				Logic:    LogicAND,
				Keywords: []string{"糖尿病", "血管病"},
			},
			{
				Name:     "DPN",
				Display:  "糖尿病周围神经病变",
				FullName: "Diabetic peripheral neuropathy",
				Logic:    LogicAND,
				Keywords: []string{"糖尿病", "神经病"},
			},
			{
				Name:     "DF",
				Display:  "糖尿病足",
				FullName: "Diabetic foot",
				Logic:    LogicAND,
				Keywords: []string{"糖尿病", "足"},
			},
			{
				Name:     "DN",
				Display:  "糖尿病肾病",
				FullName: "Diabetic nephropathy",
				Logic:    LogicAND,
				Keywords: []string{"糖尿病", "肾病"},
			},
			{
				Name:     "DR",
				Display:  "糖尿病视网膜病变",
				FullName: "Diabetic retinopathy",
				Logic:    LogicAND,
				Keywords: []string{"糖尿病", "视网膜"},
			},
			{
				Name:     "HTN",
				Display:  "高血压",
				FullName: "Hypertension",
				Logic:    LogicOR,
				Keywords: []string{"高血压"},
			},
			{
				Name:     "HL",
				Display:  "高脂血症",
				FullName: "Hyperlipidemia",
				Logic:    LogicOR,
				Keywords: []string{"高脂血症", "高胆固醇", "甘油三酯", "血脂异常"},
			},
			{
				Name:     "CAD",
				Display:  "冠状动脉粥样硬化性心脏病",
				FullName: "Coronary artery disease",
				Logic:    LogicOR,
				Keywords: []string{"冠状动脉", "冠心病", "心肌梗死", "心绞痛"},
			},
			{
				Name:     "Malignant_tumor",
				Display:  "恶性肿瘤",
				FullName: "Malignant tumor",
				Logic:    LogicOR,
				Keywords: []string{"恶性肿瘤", "癌", "肉瘤", "白血病", "淋巴瘤"},
			},
			{
				Name:     "CRF",
				Display:  "慢性肾衰竭",
				FullName: "Chronic Renal Failure",
				Logic:    LogicOR,
				Keywords: []string{"慢性肾衰", "尿毒症", "慢性肾脏病4期", "慢性肾脏病5期", "慢性肾脏病 4期", "慢性肾脏病 5期"},
			},
			{
				Name:     "RRT",
				Display:  "肾脏替代治疗",
				FullName: "Renal replacement therapy",
				Logic:    LogicOR,
				Keywords: []string{"透析", "肾移植"},
			},
			{
				Name:     "T1DM",
				Display:  "1型糖尿病",
				FullName: "Type 1 Diabetes Mellitus",
				Logic:    LogicOR,
				Keywords: []string{"1型糖尿病", "I型糖尿病"},
			},
			{
				Name:     "CVA",
				Display:  "脑血管意外",
				FullName: "Cerebrovascular accident",
				Logic:    LogicOR,
				Keywords: []string{"脑卒中", "脑血管意外", "脑梗", "脑出血", "蛛网膜下腔出血", "脑缺血"},
			},
		},
	}
}
