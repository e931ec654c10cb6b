package rules

// Glucose-lowering medication classes. Keyword matching runs against the
// ingredient name (inn_name); a few formulations are only identifiable
// from the trade or common name, handled by the special overrides.
func DefaultMedications() MedicationRules {
	return MedicationRules{
		TextColumn:   "inn_name",
		StatusColumn: "order_status",
		VoidedValue:  "已撤销",
		Oral: []FeatureRule{
			{
				Name:     "Metformin",
				Display:  "二甲双胍",
				FullName: "Metformin",
				Logic:    LogicOR,
				Keywords: []string{"二甲双胍", "吡格列酮二甲双胍", "沙格列汀二甲双胍", "西格列汀二甲双胍"},
			},
			{
				Name:     "Sulfonylureas",
				Display:  "磺脲类",
				FullName: "Sulfonylureas",
				Logic:    LogicOR,
				Keywords: []string{"格列吡嗪", "格列美脲", "格列齐特"},
			},
			{
				Name:     "Glinides",
				Display:  "格列奈类",
				FullName: "Glinides",
				Logic:    LogicOR,
				Keywords: []string{"瑞格列奈"},
			},
			{
				Name:     "TZDs",
				Display:  "噻唑烷二酮类",
				FullName: "Thiazolidinediones",
				Logic:    LogicOR,
				Keywords: []string{"吡格列酮", "吡格列酮二甲双胍"},
			},
			{
				Name:     "AGIs",
				Display:  "α-葡萄糖苷酶抑制剂",
				FullName: "Alpha-Glucosidase Inhibitors",
				Logic:    LogicOR,
				Keywords: []string{"阿卡波糖", "伏格列波糖", "米格列醇"},
			},
			{
				Name:     "DPP4i",
				Display:  "二肽基肽酶-4抑制剂",
				FullName: "Dipeptidyl Peptidase-4 Inhibitors",
				Logic:    LogicOR,
				Keywords: []string{"利格列汀", "沙格列汀", "沙格列汀二甲双胍", "维格列汀", "西格列汀", "西格列汀二甲双胍"},
			},
			{
				Name:     "SGLT2i",
				Display:  "钠-葡萄糖协同转运蛋白2抑制剂",
				FullName: "Sodium-Glucose Cotransporter 2 Inhibitors",
				Logic:    LogicOR,
				Keywords: []string{"达格列净", "卡格列净", "恩格列净"},
				Special: &Override{
					Fields:  []string{"trade_name", "common_name"},
					Pattern: "艾托格列净",
				},
			},
		},
		Insulin: []FeatureRule{
			{
				Name:     "Rapid_insulin",
				Display:  "餐时胰岛素",
				FullName: "Rapid-acting insulin",
				Logic:    LogicOR,
				Keywords: []string{"赖脯胰岛素", "重组人胰岛素r", "门冬胰岛素"},
				// premixed formulations carry these markers and must not
				// count as rapid-acting
				Exclude: []string{"25r", "50r", "30", "70/30", "(50/50)"},
				Special: &Override{
					Primary:    "胰岛素",
					Fields:     []string{"common_name"},
					Pattern:    "胰岛素注射液",
					RouteField: "drug_administration_method",
					Routes:     []string{"皮下注射", "皮内注射", "肌肉注射"},
				},
			},
			{
				Name:     "Basal_insulin",
				Display:  "基础胰岛素",
				FullName: "Basal insulin",
				Logic:    LogicOR,
				Keywords: []string{"地特胰岛素", "德谷胰岛素", "甘精胰岛素", "精蛋白重组人胰岛素n", "重组甘精胰岛素"},
			},
			{
				Name:     "Dual_insulin",
				Display:  "双胰岛素",
				FullName: "Dual insulin",
				Logic:    LogicOR,
				Special: &Override{
					Primary: "胰岛素",
					Fields:  []string{"common_name"},
					Pattern: "德谷门冬双胰岛素(诺和佳（畅充）)",
				},
			},
			{
				Name:     "Premixed_insulin",
				Display:  "预混胰岛素",
				FullName: "Premixed insulin",
				Logic:    LogicOR,
				Keywords: []string{
					"30/70混合重组人胰岛素",
					"精蛋白生物合成人胰岛素30r",
					"精蛋白重组人胰岛素(50/50)",
					"精蛋白锌重组人胰岛素70/30",
					"精蛋白锌重组赖脯胰岛素25r",
					"精蛋白锌重组赖脯胰岛素50r",
					"门冬胰岛素30",
				},
			},
		},
	}
}
